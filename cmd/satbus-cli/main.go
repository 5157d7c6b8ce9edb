// Command satbus-cli is a minimal ground-side operator console for the
// NDJSON command/telemetry stream a satbusd instance exposes over TCP. It is
// not part of the simulated bus itself — a stand-in for flight software or a
// ground station terminal, useful for poking a running instance by hand.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/model"
	"satbus/internal/logger"
)

func main() {
	host := flag.String("host", "127.0.0.1", "satbusd server host")
	port := flag.Int("port", 7700, "satbusd server port")
	flag.Parse()

	cfg, err := config.Load("configs/config.yaml")
	var logCfg config.LoggingConfig
	if err != nil {
		logCfg = config.LoggingConfig{
			Level: "info", Encoding: "console", TimeEncoder: "iso8601",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
	} else {
		logCfg = cfg.Logging
	}

	log, err := logger.ProvideBaseLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		log.Fatal("dial failed", zap.String("addr", addr), zap.Error(err))
	}
	defer conn.Close()
	log.Info("connected", zap.String("addr", addr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go readLoop(ctx, conn, log)
	repl(conn, log)
}

// readLoop prints every line arriving from the server: telemetry broadcasts
// and command responses are interleaved on the same connection, so this
// side just tells them apart by shape and prints whichever it got.
func readLoop(ctx context.Context, conn net.Conn, log *zap.Logger) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp model.Response
		if err := json.Unmarshal(line, &resp); err == nil && resp.Status != "" {
			fmt.Printf("< response id=%d status=%s message=%q\n", resp.ID, resp.Status, resp.Message)
			continue
		}
		var pkt model.TelemetryPacket
		if err := json.Unmarshal(line, &pkt); err == nil && pkt.SequenceNumber > 0 {
			fmt.Printf("< telemetry seq=%d safety=%s safe_mode=%v battery=%d%% core_temp=%.2fC link_up=%v\n",
				pkt.SequenceNumber, pkt.SafetyLevel, pkt.SafeModeActive,
				pkt.Power.BatteryLevelPct, float64(pkt.Thermal.CoreTempC)/100.0, pkt.Comms.LinkUp)
			continue
		}
		fmt.Printf("< %s\n", line)
	}
	if err := scanner.Err(); err != nil {
		log.Warn("read loop ended", zap.Error(err))
	}
	select {
	case <-ctx.Done():
	default:
		fmt.Println("connection closed by server")
		os.Exit(0)
	}
}

var nextID uint32

// repl reads operator commands from stdin and writes the corresponding
// NDJSON command line to the connection.
func repl(conn net.Conn, log *zap.Logger) {
	fmt.Println("satbus-cli ready. Commands: ping, status, reboot, solar <on|off>, heater <on|off>,")
	fmt.Println("  comms <on|off>, tx <dbm>, transmit <msg>, safemode <on|off>, fault <subsystem> <kind>,")
	fmt.Println("  clearfaults, faultinjection <on|off>, faultstatus, quit")

	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			return
		}
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}

		out, err := json.Marshal(cmd)
		if err != nil {
			log.Error("failed to marshal command", zap.Error(err))
			continue
		}
		out = append(out, '\n')
		if _, err := conn.Write(out); err != nil {
			log.Error("failed to send command", zap.Error(err))
			return
		}
	}
}

func parseCommand(line string) (model.Command, error) {
	fields := strings.Fields(line)
	id := atomic.AddUint32(&nextID, 1)
	nowMS := uint64(time.Now().UnixMilli())

	cmd := model.Command{ID: id, TimestampMS: nowMS}

	switch fields[0] {
	case "ping":
		cmd.Type = model.CommandType{Kind: model.CmdPing}
	case "status":
		cmd.Type = model.CommandType{Kind: model.CmdSystemStatus}
	case "reboot":
		cmd.Type = model.CommandType{Kind: model.CmdSystemReboot}
	case "solar":
		on, err := parseOnOff(fields)
		if err != nil {
			return cmd, err
		}
		cmd.Type = model.CommandType{Kind: model.CmdSetSolarPanel, Params: model.CommandParams{Enabled: &on}}
	case "heater":
		on, err := parseOnOff(fields)
		if err != nil {
			return cmd, err
		}
		cmd.Type = model.CommandType{Kind: model.CmdSetHeaterState, Params: model.CommandParams{On: &on}}
	case "comms":
		on, err := parseOnOff(fields)
		if err != nil {
			return cmd, err
		}
		cmd.Type = model.CommandType{Kind: model.CmdSetCommsLink, Params: model.CommandParams{Enabled: &on}}
	case "tx":
		if len(fields) != 2 {
			return cmd, fmt.Errorf("usage: tx <dbm>")
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return cmd, fmt.Errorf("invalid dBm value %q", fields[1])
		}
		dbm := int8(v)
		cmd.Type = model.CommandType{Kind: model.CmdSetTxPower, Params: model.CommandParams{PowerDBm: &dbm}}
	case "transmit":
		if len(fields) < 2 {
			return cmd, fmt.Errorf("usage: transmit <message>")
		}
		cmd.Type = model.CommandType{Kind: model.CmdTransmitMessage, Params: model.CommandParams{Message: strings.Join(fields[1:], " ")}}
	case "safemode":
		on, err := parseOnOff(fields)
		if err != nil {
			return cmd, err
		}
		cmd.Type = model.CommandType{Kind: model.CmdSetSafeMode, Params: model.CommandParams{Enabled: &on}}
	case "fault":
		if len(fields) != 3 {
			return cmd, fmt.Errorf("usage: fault <Power|Thermal|Comms> <Degraded|Failed|Intermittent>")
		}
		target := model.SubsystemID(fields[1])
		kind := model.FaultKind(fields[2])
		cmd.Type = model.CommandType{Kind: model.CmdSimulateFault, Params: model.CommandParams{Target: &target, FaultType: &kind}}
	case "clearfaults":
		cmd.Type = model.CommandType{Kind: model.CmdClearFaults}
	case "faultinjection":
		on, err := parseOnOff(fields)
		if err != nil {
			return cmd, err
		}
		cmd.Type = model.CommandType{Kind: model.CmdSetFaultInjection, Params: model.CommandParams{Enabled: &on}}
	case "faultstatus":
		cmd.Type = model.CommandType{Kind: model.CmdGetFaultInjectionStatus}
	default:
		return cmd, fmt.Errorf("unknown command %q", fields[0])
	}
	return cmd, nil
}

func parseOnOff(fields []string) (bool, error) {
	if len(fields) != 2 {
		return false, fmt.Errorf("usage: %s <on|off>", fields[0])
	}
	switch fields[1] {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected on|off, got %q", fields[1])
	}
}
