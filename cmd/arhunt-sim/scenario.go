package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lootquest/arengine/internal/bridge"
	"github.com/lootquest/arengine/internal/dispatcher"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted host session.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step sends one bridge command, Repeat times. A Walk turns a :TICK: step into
// a camera path from From to To over the repeats.
type Step struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Repeat  int           `yaml:"repeat"`
	Pause   time.Duration `yaml:"pause"`
	Walk    *Walk         `yaml:"walk"`
}

// Walk moves the camera in a straight line, one tick per repeat.
type Walk struct {
	From    [3]float64 `yaml:"from"`
	To      [3]float64 `yaml:"to"`
	Forward [3]float64 `yaml:"forward"`
	DT      float64    `yaml:"dt"`
}

// ErrEmptyScenario is returned for a scenario without steps.
var ErrEmptyScenario = errors.New("scenario has no steps")

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(b)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(b []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(b, &sc); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return Scenario{}, ErrEmptyScenario
	}
	for i, st := range sc.Steps {
		if st.Command == "" {
			return Scenario{}, fmt.Errorf("step %d: missing command", i)
		}
		if st.Walk != nil && st.Command != bridge.CmdTick {
			return Scenario{}, fmt.Errorf("step %d: walk needs %s, got %s", i, bridge.CmdTick, st.Command)
		}
		if st.Repeat < 0 {
			return Scenario{}, fmt.Errorf("step %d: negative repeat", i)
		}
	}
	return sc, nil
}

// Events expands the step into the bridge events it sends.
func (st Step) Events() []dispatcher.Event {
	n := st.Repeat
	if n == 0 {
		n = 1
	}
	out := make([]dispatcher.Event, 0, n)
	for i := 0; i < n; i++ {
		args := st.Args
		if st.Walk != nil {
			args = st.Walk.args(i, n)
		}
		out = append(out, dispatcher.Event{Command: st.Command, Args: args})
	}
	return out
}

func (w *Walk) args(i, n int) []string {
	t := 1.0
	if n > 1 {
		t = float64(i) / float64(n-1)
	}
	var cam [3]float64
	for k := range cam {
		cam[k] = w.From[k] + (w.To[k]-w.From[k])*t
	}
	fwd := w.Forward
	if fwd == [3]float64{} {
		fwd = [3]float64{0, 0, -1}
	}
	dt := w.DT
	if dt <= 0 {
		dt = 1.0 / 60
	}
	return []string{vec(cam), vec(fwd), strconv.FormatFloat(dt, 'f', -1, 64)}
}

func vec(v [3]float64) string {
	return fmt.Sprintf("%s,%s,%s",
		strconv.FormatFloat(v[0], 'f', -1, 64),
		strconv.FormatFloat(v[1], 'f', -1, 64),
		strconv.FormatFloat(v[2], 'f', -1, 64))
}

// Replay dispatches every step in order. Queued commands are only enqueued
// here; their errors are logged by the dispatcher lane.
func Replay(ctx context.Context, d *dispatcher.Dispatcher, sc Scenario, log *slog.Logger) error {
	for i, st := range sc.Steps {
		for _, e := range st.Events() {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.Timestamp = time.Now()
			res, err := d.Dispatch(e)
			if err != nil {
				return fmt.Errorf("step %d %s: %w", i, e.Command, err)
			}
			if s, ok := res.(string); ok && s != "queued" {
				log.Info("Command result", "command", e.Command, "result", s)
			}
		}
		if st.Pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(st.Pause):
			}
		}
	}
	return nil
}
