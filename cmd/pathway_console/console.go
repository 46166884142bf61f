// Command pathway_console is an interactive shell on the positioner's serial
// console. Lines are sent through the same session the bridge uses, so the
// settle and drain timing applies.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/w1xm/pathway_interface/internal/config"
	"github.com/w1xm/pathway_interface/internal/logger"
	"github.com/w1xm/pathway_interface/pathway"
	"github.com/w1xm/pathway_interface/pathway/simulator"
)

const help = `:init           enter the motor menu if needed
:pos            query both axes
:move AZ EL     move to a position
:status         show the last known state
quit            exit
anything else is sent to the device as is
`

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		logger.Default().Fatal("invalid configuration", "err", err)
	}
	log := cfg.Logger()
	logger.SetDefault(log)
	ctx := context.Background()

	var session *pathway.Session
	if cfg.Simulate {
		sim, conn := simulator.New(simulator.WithLogger(logger.Discard()))
		go sim.Run(ctx)
		session = pathway.New(conn, cfg.SessionOptions(log)...)
	} else {
		session, err = pathway.Dial(cfg.Serial.Port, cfg.Serial.Baud, cfg.SessionOptions(log)...)
		if err != nil {
			log.Fatal("failed to open positioner", "err", err)
		}
	}
	defer session.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pathway> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		log.Fatal("starting readline", "err", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return
			}
			continue
		} else if err == io.EOF {
			return
		} else if err != nil {
			log.Error("reading input", "err", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "quit" || line == "exit" {
			return
		}
		if err := run(ctx, rl.Stdout(), session, line); err != nil {
			fmt.Fprintln(rl.Stderr(), "error:", err)
		}
	}
}

func run(ctx context.Context, w io.Writer, s *pathway.Session, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], ":") {
		resp, err := s.SendCommand(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprint(w, resp)
		if !strings.HasSuffix(resp, "\n") {
			fmt.Fprintln(w)
		}
		return nil
	}
	switch fields[0] {
	case ":help":
		fmt.Fprint(w, help)
	case ":init":
		return s.Initialize(ctx)
	case ":pos":
		az, el := s.GetPosition(ctx)
		fmt.Fprintf(w, "azimuth %.2f elevation %.2f\n", az, el)
	case ":move":
		if len(fields) != 3 {
			return errors.New("usage: :move AZ EL")
		}
		az, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return err
		}
		el, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return err
		}
		return s.MoveTo(ctx, az, el)
	case ":status":
		st := s.Status()
		fmt.Fprintf(w, "initialized=%t azimuth=%.2f elevation=%.2f updated=%s\n",
			st.Initialized, st.AzPos, st.ElPos, st.Updated.Format("15:04:05.000"))
	default:
		return fmt.Errorf("unknown command %q, try :help", fields[0])
	}
	return nil
}
