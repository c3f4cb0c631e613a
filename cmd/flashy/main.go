package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/flashybank-client/app"
	"github.com/jrsteele09/flashybank-client/internal/config"
	applog "github.com/jrsteele09/flashybank-client/internal/log"
	"github.com/jrsteele09/flashybank-client/notify"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%sError:%s %s\n", Red, ResetColor, err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	flags := flag.NewFlagSet("flashy", flag.ContinueOnError)
	configFile := flags.String("config", "", "path to a flashy.yaml config file")
	verbose := flags.Bool("v", false, "trace backend requests")
	noBanner := flags.Bool("no-banner", false, "do not print the banner")
	flags.Usage = func() { printUsage(flags.Output(), flags) }
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errUsage
	}

	cmd, ok := commands[flags.Arg(0)]
	if !ok {
		fmt.Fprintf(flags.Output(), "unknown command %q\n\n", flags.Arg(0))
		flags.Usage()
		return errUsage
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	log := applog.New(cfg.GetEnv())
	if !*noBanner {
		displayAppname(stdout, cfg.GetAppName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var transport http.RoundTripper = http.DefaultTransport
	if *verbose {
		transport = &tracingTransport{base: transport, out: os.Stderr}
	}

	a, err := app.New(ctx, cfg, log,
		app.WithNotifier(notify.NewWriterNotifier(stdout, Yellow+"⚡ "+ResetColor)),
		app.WithTransport(transport),
	)
	if err != nil {
		return err
	}
	defer func() {
		returnError = errors.Join(returnError, a.Close())
	}()

	if err := a.Start(ctx); err != nil {
		return err
	}

	c := &cli{
		app: a,
		in:  bufio.NewReader(stdin),
		out: stdout,
	}
	err = cmd.run(ctx, c, flags.Args()[1:])
	if errors.Is(err, errUsage) {
		fmt.Fprintf(flags.Output(), "usage: flashy %s\n", cmd.usage)
	}
	return err
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprint(w, myFigure.String())
	fmt.Fprintln(w)
}
