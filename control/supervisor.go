package control

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"remindbot/logging"
)

// Runner runs the engine once and returns when it exits. Cancelling ctx asks
// it to shut down.
type Runner func(ctx context.Context) error

// ExecRunner runs args as a child process sharing this process's stdio. On
// cancellation the child receives an interrupt and gets grace to exit.
func ExecRunner(args []string, grace time.Duration) Runner {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
		cmd.WaitDelay = grace
		return cmd.Run()
	}
}

type Supervisor struct {
	control      *File
	run          Runner
	autoRestart  func() bool
	log          *slog.Logger
	restartDelay time.Duration

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

type SupervisorOption func(*Supervisor)

func WithSupervisorLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.log = logging.OrNop(logger).With("component", "launcher")
	}
}

// WithAutoRestart supplies the auto_restart setting, consulted after each
// abnormal exit.
func WithAutoRestart(fn func() bool) SupervisorOption {
	return func(s *Supervisor) {
		s.autoRestart = fn
	}
}

func WithRestartDelay(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.restartDelay = d
	}
}

func NewSupervisor(control *File, run Runner, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		control:      control,
		run:          run,
		autoRestart:  func() bool { return false },
		log:          logging.Nop(),
		restartDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run launches the engine until a stop is requested, a normal exit happens
// without a restart request, or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		flags, err := s.control.Ensure()
		if err != nil {
			return err
		}
		if flags.Stop {
			s.log.Info("stop flag was set at launch, clearing it to allow start")
			if err := s.control.SetStop(false); err != nil {
				return err
			}
		}

		s.log.Info("starting engine")
		runErr := s.launch(ctx)

		flags, err = s.control.Read()
		if err != nil {
			s.log.Warn("control file unreadable after exit", "error", err)
		}
		// restart is one-shot
		if err := s.control.SetRestart(false); err != nil {
			s.log.Warn("failed to clear restart flag", "error", err)
		}

		switch {
		case flags.Stop:
			s.log.Info("stop flag detected after exit, launcher exiting")
			return nil
		case ctx.Err() != nil:
			return nil
		case flags.Restart:
			s.log.Info("restarting engine as requested")
		case runErr != nil && s.autoRestart():
			s.log.Warn("engine exited abnormally, auto restart enabled", "error", runErr)
		default:
			if runErr != nil {
				s.log.Error("engine exited abnormally, launcher stopping", "error", runErr)
				return runErr
			}
			s.log.Info("engine exited normally, launcher stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.restartDelay):
		}
	}
}

func (s *Supervisor) launch(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	err := s.run(runCtx)

	s.mu.Lock()
	s.cancelRun = nil
	s.mu.Unlock()
	return err
}

// Request sets a flag and asks the running engine to exit so the flag is
// acted on.
func (s *Supervisor) Request(restart bool) error {
	var err error
	if restart {
		err = s.control.SetRestart(true)
	} else {
		err = s.control.SetStop(true)
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.mu.Unlock()
	return nil
}

// ListenTerminal reads commands from r: "r" restarts, "q" quits. It returns
// after "q" or when r is exhausted.
func (s *Supervisor) ListenTerminal(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "r":
			s.log.Info("restart requested via terminal")
			if err := s.Request(true); err != nil {
				s.log.Error("restart request failed", "error", err)
			}
		case "q":
			s.log.Info("quit requested via terminal")
			if err := s.Request(false); err != nil {
				s.log.Error("quit request failed", "error", err)
			}
			return
		}
	}
}
