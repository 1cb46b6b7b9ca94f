// Command pipechan is an interactive harness for pipe channels. It opens one end
// of a named pipe and lets you drive it from stdin:
//
//	pipechan [flags] server|client <name>
//
// Type "open" or "close" to open or close the channel, "example" to send an
// Example message, "q" to quit, or any other text to send it as a line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/sammck-go/pipechan/pkg/pipechannel"
	"github.com/sammck-go/pipechan/pkg/pipemsg"
	pipeshare "github.com/sammck-go/pipechan/share"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// printer serializes console output from the command loop and the channel's
// notification handlers.
type printer struct {
	lock sync.Mutex
	w    io.Writer
}

func (p *printer) Printf(f string, args ...interface{}) {
	p.lock.Lock()
	defer p.lock.Unlock()
	fmt.Fprintf(p.w, f+"\n", args...)
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pipechan [flags] server <pipe-name>")
	fmt.Fprintln(w, "  pipechan [flags] client <pipe-name>")
	fmt.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pipechan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path of a TOML config file")
	dir := fs.String("dir", "", "directory holding endpoint sockets (default: the system temp dir)")
	logLevel := pipeshare.LogLevelWarning
	fs.TextVar(&logLevel, "log-level", pipeshare.LogLevelWarning, "log level: error, warning, info, debug or trace")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		usage(stderr, fs)
		return 2
	}
	if fs.NArg() != 2 || (fs.Arg(0) != "server" && fs.Arg(0) != "client") || strings.TrimSpace(fs.Arg(1)) == "" {
		usage(stderr, fs)
		return 2
	}

	cfg, err := LoadConfig(*configPath, DefaultConfig())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.Dir = *dir
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})

	logger := pipeshare.NewLoggerWithWriter(stderr, "pipechan", cfg.LogLevel)
	if *configPath != "" {
		w, err := newConfigWatcher(logger, *configPath, func(newCfg *Config) {
			logger.SetLogLevel(newCfg.LogLevel)
		})
		if err != nil {
			logger.WLogf("not watching config file: %s", err)
		} else {
			defer w.Close()
		}
	}

	role, _ := pipechannel.ParseRole(fs.Arg(0))
	channel, err := pipechannel.New(role, fs.Arg(1), &pipechannel.Config{
		Dir:               cfg.Dir,
		Logger:            logger,
		MinRetryInterval:  cfg.MinRetryInterval.Duration,
		MaxRetryInterval:  cfg.MaxRetryInterval.Duration,
		CloseDrainTimeout: cfg.CloseDrainTimeout.Duration,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer channel.Dispose()

	out := &printer{w: stdout}
	showInstructions(out, channel)

	channel.OnStateChanged(func(s pipechannel.State) {
		out.Printf("State > %s", s)
	})
	channel.OnMessageSent(func(text string) {
		out.Printf("Send > %s", text)
	})
	channel.OnMessageReceived(func(text string) {
		out.Printf("Received > %s", text)
		if example, ok := channel.Codec().Decode(text).(*pipemsg.Example); ok {
			out.Printf("Received > Type=%T", example)
			out.Printf("Received > Id=%d", example.ID)
		}
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var input string
		var ok bool
		select {
		case <-ctx.Done():
			return 0
		case input, ok = <-lines:
			if !ok {
				return 0
			}
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		switch {
		case strings.EqualFold(input, "q"):
			return 0
		case strings.EqualFold(input, "open"):
			channel.Open()
		case strings.EqualFold(input, "close"):
			channel.Close()
		case strings.EqualFold(input, "example"):
			id := int(time.Now().UnixNano() & math.MaxInt32)
			if err := channel.SendMessage(pipemsg.NewExample(id)); err != nil {
				logger.ELogf("%s", err)
			}
		default:
			channel.Send(input)
		}
	}
}

func showInstructions(out *printer, channel *pipechannel.Channel) {
	out.Printf("")
	out.Printf("Starting %s on pipe %s (%s)", channel.Role(), channel.Name(), channel.Path())
	out.Printf("")
	out.Printf("> Type \"open\" and press ENTER to open connection")
	out.Printf("> Type \"close\" and press ENTER to close connection")
	out.Printf("> Type \"example\" and press ENTER to send example message")
	out.Printf("> Type [any string] and press ENTER to send any string")
	out.Printf("> Type \"q\" and press ENTER to quit")
	out.Printf("")
}
