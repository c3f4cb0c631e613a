package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/flashybank-client/api"
	"github.com/jrsteele09/flashybank-client/app"
	"github.com/jrsteele09/flashybank-client/credentials"
	"github.com/jrsteele09/flashybank-client/forms"
	"github.com/jrsteele09/flashybank-client/quickmode"
	"github.com/jrsteele09/flashybank-client/session"
	"github.com/jrsteele09/flashybank-client/theme"
)

var errNotSignedIn = errors.New("not signed in, run `flashy login` first")

type cli struct {
	app *app.App
	in  *bufio.Reader
	out io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, c *cli, args []string) error
}

var commands = map[string]command{
	"login":    {"login [-u username]           sign in", cmdLogin},
	"register": {"register                      create an account and sign in", cmdRegister},
	"relogin":  {"relogin                       sign in with the saved login", cmdRelogin},
	"logout":   {"logout                        sign out", cmdLogout},
	"forget":   {"forget                        delete the saved login", cmdForget},
	"status":   {"status                        show session, quick mode and theme", cmdStatus},
	"profile":  {"profile                       show the signed-in profile", cmdProfile},
	"rename":   {"rename <username>             change your username", cmdRename},
	"balance":  {"balance                       show your balance", cmdBalance},
	"validate": {"validate <username>           check a recipient", cmdValidate},
	"send":     {"send <to> <amount> [note]     transfer money", cmdSend},
	"initiate": {"initiate <to> <amount> [note] start a transfer to confirm later", cmdInitiate},
	"confirm":  {"confirm <id>                  confirm a pending transfer", cmdConfirm},
	"cancel":   {"cancel <id>                   cancel a pending transfer", cmdCancel},
	"history":  {"history                       list your transactions", cmdHistory},
	"tx":       {"tx <id>                       show one transaction", cmdTransaction},
	"users":    {"users [-page n] [-size n] [q] search users", cmdUsers},
	"user":     {"user <username>               show a public profile", cmdUser},
	"quick":    {"quick enable|extend|disable|status|watch", cmdQuick},
	"theme":    {"theme show|list|set <id>|dark|auto", cmdTheme},
}

func printUsage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(w, "usage: flashy [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	flags.PrintDefaults()
}

func (c *cli) prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (c *cli) ok(format string, args ...any) {
	fmt.Fprintf(c.out, colourise(Green, "✔ ")+format+"\n", args...)
}

func (c *cli) result(res session.Result, success string) error {
	if !res.Success {
		return errors.New(res.Error)
	}
	c.ok("%s", success)
	return nil
}

// currentUser returns the signed-in username
func (c *cli) currentUser() (string, error) {
	s := c.app.Session.State()
	if !s.IsAuthenticated || s.User == nil {
		return "", errNotSignedIn
	}
	return s.User.Username, nil
}

func cmdLogin(ctx context.Context, c *cli, args []string) error {
	flags := flag.NewFlagSet("login", flag.ContinueOnError)
	username := flags.String("u", "", "username")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}

	if *username == "" {
		saved, _ := c.app.Credentials.SavedUsername(ctx)
		var err error
		if *username, err = c.prompt("Username", saved); err != nil {
			return err
		}
	}
	password, err := c.prompt("Password", "")
	if err != nil {
		return err
	}
	form := forms.Login{Username: *username, Password: password}
	if err := forms.ValidateLogin(form); err != nil {
		return err
	}
	return c.result(c.app.Session.Login(ctx, form.Username, form.Password), "Welcome back, "+form.Username)
}

func cmdRegister(ctx context.Context, c *cli, _ []string) error {
	var form forms.Registration
	var err error
	if form.Username, err = c.prompt("Username", ""); err != nil {
		return err
	}
	if form.Password, err = c.prompt("Password", ""); err != nil {
		return err
	}
	if form.ConfirmPassword, err = c.prompt("Confirm password", ""); err != nil {
		return err
	}
	if err := forms.ValidateRegistration(form); err != nil {
		return err
	}
	return c.result(c.app.Session.Register(ctx, form.Username, form.Password), "Account created, welcome "+form.Username)
}

func cmdRelogin(ctx context.Context, c *cli, _ []string) error {
	return c.result(c.app.Session.LoginWithSavedCredentials(ctx), "Signed in with the saved login")
}

func cmdLogout(ctx context.Context, c *cli, _ []string) error {
	c.app.Session.Logout(ctx)
	if err := c.app.QuickMode.Disable(ctx); err != nil {
		return err
	}
	c.ok("Signed out")
	return nil
}

func cmdForget(ctx context.Context, c *cli, _ []string) error {
	if err := c.app.Credentials.ClearLogin(ctx); err != nil {
		return err
	}
	c.ok("Saved login deleted")
	return nil
}

func cmdStatus(ctx context.Context, c *cli, _ []string) error {
	fmt.Fprintf(c.out, "Backend:    %s\n", c.app.API.BaseURL())

	s := c.app.Session.State()
	if s.IsAuthenticated && s.User != nil {
		fmt.Fprintf(c.out, "Session:    signed in as %s\n", colourise(Green, s.User.Username))
	} else {
		fmt.Fprintf(c.out, "Session:    %s\n", colourise(Gray, "signed out"))
	}
	c.printToken(ctx)

	q := c.app.QuickMode.State()
	if q.Enabled {
		fmt.Fprintf(c.out, "Quick Mode: on, %s left (until %s)\n", c.app.QuickMode.FormatRemaining(), q.EndTime.Local().Format(time.Kitchen))
	} else {
		fmt.Fprintf(c.out, "Quick Mode: off\n")
	}

	t := c.app.Theme.Settings()
	mode := "light"
	if t.DarkMode {
		mode = "dark"
	}
	if t.AutoMode {
		mode += " (auto)"
	}
	fmt.Fprintf(c.out, "Theme:      %s, %s\n", t.ThemeID, mode)
	return nil
}

// printToken describes the stored access token from its unverified claims
func (c *cli) printToken(ctx context.Context) {
	tok, err := c.app.Credentials.TokenSource(ctx).Token()
	if err != nil {
		return
	}
	claims, err := credentials.ParseClaims(tok.AccessToken)
	if err != nil {
		fmt.Fprintf(c.out, "Token:      opaque\n")
		return
	}

	var parts []string
	if claims.Subject != "" {
		parts = append(parts, "subject "+claims.Subject)
	}
	switch {
	case tok.Expiry.IsZero():
		parts = append(parts, "no expiry")
	case claims.Expired(time.Now()):
		parts = append(parts, colourise(Red, "expired "+tok.Expiry.Local().Format(time.DateTime)))
	default:
		parts = append(parts, "expires "+tok.Expiry.Local().Format(time.DateTime))
	}
	fmt.Fprintf(c.out, "Token:      %s\n", strings.Join(parts, ", "))
}

func printProfile(w io.Writer, p *api.Profile) {
	fmt.Fprintf(w, "Username: %s\n", p.Username)
	fmt.Fprintf(w, "Balance:  %s\n", formatAmount(p.Balance))
	if p.Role != "" {
		fmt.Fprintf(w, "Role:     %s\n", p.Role)
	}
	if !p.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Member since %s\n", p.CreatedAt.Format("2 Jan 2006"))
	}
}

func cmdProfile(ctx context.Context, c *cli, _ []string) error {
	if _, err := c.currentUser(); err != nil {
		return err
	}
	c.app.Session.RefreshProfile(ctx)
	printProfile(c.out, c.app.Session.State().User)
	return nil
}

func cmdRename(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if _, err := c.currentUser(); err != nil {
		return err
	}
	return c.result(c.app.Session.UpdateUsername(ctx, args[0]), "Username changed to "+args[0])
}

func cmdBalance(ctx context.Context, c *cli, _ []string) error {
	if _, err := c.currentUser(); err != nil {
		return err
	}
	b, err := c.app.API.Balance(ctx)
	if err != nil {
		return errors.New(api.Message(err, "Could not load balance"))
	}
	fmt.Fprintf(c.out, "%s\n", colourise(GreenInverse, " "+formatAmount(b.Balance)+" "))
	return nil
}

func cmdValidate(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	me, err := c.currentUser()
	if err != nil {
		return err
	}
	if err := forms.ValidateRecipient(args[0], me); err != nil {
		return err
	}
	v, err := c.app.API.ValidateUser(ctx, args[0])
	if err != nil {
		return errors.New(api.Message(err, "Could not check recipient"))
	}
	if !v.Valid {
		return forms.ErrInvalidRecipient
	}
	c.ok("%s can receive transfers", v.Username)
	return nil
}

// transferRequest validates a "<to> <amount> [note]" argument list the same
// way the transfer screen does, including asking the backend about the
// recipient.
func (c *cli) transferRequest(ctx context.Context, args []string) (api.TransferRequest, error) {
	if len(args) < 2 {
		return api.TransferRequest{}, errUsage
	}
	me, err := c.currentUser()
	if err != nil {
		return api.TransferRequest{}, err
	}
	form := forms.Transfer{Recipient: args[0], Amount: args[1], Description: strings.Join(args[2:], " ")}
	amount, err := forms.ValidateTransfer(form, me)
	if err != nil {
		return api.TransferRequest{}, err
	}
	v, err := c.app.API.ValidateUser(ctx, form.Recipient)
	if err != nil || !v.Valid {
		return api.TransferRequest{}, forms.ErrInvalidRecipient
	}
	return api.TransferRequest{ReceiverUsername: form.Recipient, Amount: amount, Description: form.Description}, nil
}

func cmdSend(ctx context.Context, c *cli, args []string) error {
	req, err := c.transferRequest(ctx, args)
	if err != nil {
		return err
	}
	tx, err := c.app.API.Transfer(ctx, req)
	if err != nil {
		return errors.New(api.Message(err, "Transfer failed"))
	}
	c.app.Session.RefreshProfile(ctx)
	c.ok("Sent %s to %s (#%d)", formatAmount(tx.Amount), tx.ReceiverUsername, tx.ID)
	return nil
}

func cmdInitiate(ctx context.Context, c *cli, args []string) error {
	req, err := c.transferRequest(ctx, args)
	if err != nil {
		return err
	}
	tx, err := c.app.API.InitiateTransfer(ctx, req)
	if err != nil {
		return errors.New(api.Message(err, "Transfer failed"))
	}
	c.ok("Transfer #%d of %s to %s is %s; run `flashy confirm %d` to send it", tx.ID, formatAmount(tx.Amount), tx.ReceiverUsername, tx.Status, tx.ID)
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transaction id %q", args[0])
	}
	return id, nil
}

func cmdConfirm(ctx context.Context, c *cli, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if _, err := c.currentUser(); err != nil {
		return err
	}
	tx, err := c.app.API.ConfirmTransfer(ctx, id)
	if err != nil {
		return errors.New(api.Message(err, "Could not confirm transfer"))
	}
	c.app.Session.RefreshProfile(ctx)
	c.ok("Transfer #%d %s", tx.ID, strings.ToLower(tx.Status))
	return nil
}

func cmdCancel(ctx context.Context, c *cli, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if _, err := c.currentUser(); err != nil {
		return err
	}
	tx, err := c.app.API.CancelTransfer(ctx, id)
	if err != nil {
		return errors.New(api.Message(err, "Could not cancel transfer"))
	}
	c.ok("Transfer #%d %s", tx.ID, strings.ToLower(tx.Status))
	return nil
}

func cmdHistory(ctx context.Context, c *cli, _ []string) error {
	if _, err := c.currentUser(); err != nil {
		return err
	}
	entries, err := c.app.API.History(ctx)
	if err != nil {
		return errors.New(api.Message(err, "Could not load history"))
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No transactions yet")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tWITH\tAMOUNT\tSTATUS\tNOTE")
	for _, e := range entries {
		amount := colourise(Green, "+"+formatAmount(e.Amount))
		if e.Type == api.DirectionSent {
			amount = colourise(Red, "-"+formatAmount(e.Amount))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.OtherUser, amount, e.Status, e.Description)
	}
	return tw.Flush()
}

func cmdTransaction(ctx context.Context, c *cli, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if _, err := c.currentUser(); err != nil {
		return err
	}
	tx, err := c.app.API.Transaction(ctx, id)
	if err != nil {
		return errors.New(api.Message(err, "Could not load transaction"))
	}
	fmt.Fprintf(c.out, "#%d %s -> %s %s %s\n", tx.ID, tx.SenderUsername, tx.ReceiverUsername, formatAmount(tx.Amount), tx.Status)
	if tx.Description != "" {
		fmt.Fprintf(c.out, "  %s\n", tx.Description)
	}
	return nil
}

func cmdUsers(ctx context.Context, c *cli, args []string) error {
	flags := flag.NewFlagSet("users", flag.ContinueOnError)
	page := flags.Int("page", 0, "page number, from 0")
	size := flags.Int("size", 20, "page size")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if _, err := c.currentUser(); err != nil {
		return err
	}
	result, err := c.app.API.ListUsers(ctx, *page, *size, strings.Join(flags.Args(), " "))
	if err != nil {
		return errors.New(api.Message(err, "Could not load users"))
	}
	for _, u := range result.Content {
		fmt.Fprintf(c.out, "%s\n", u.Username)
	}
	fmt.Fprintf(c.out, colourise(Gray, "page %d of %d, %d users\n"), result.CurrentPage+1, max(result.TotalPages, 1), result.TotalElements)
	return nil
}

func cmdUser(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if _, err := c.currentUser(); err != nil {
		return err
	}
	u, err := c.app.API.PublicUser(ctx, args[0])
	if err != nil {
		return errors.New(api.Message(err, "User not found"))
	}
	fmt.Fprintf(c.out, "%s (%s)\n", u.Username, strings.ToLower(u.Role))
	return nil
}

func cmdQuick(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	gate := c.app.QuickMode
	switch args[0] {
	case "enable":
		if _, err := c.currentUser(); err != nil {
			return err
		}
		if err := gate.Enable(ctx); err != nil {
			return err
		}
		c.ok("Quick Mode on for %s", gate.FormatRemaining())
	case "extend":
		if _, err := c.currentUser(); err != nil {
			return err
		}
		if err := gate.Extend(ctx); err != nil {
			return err
		}
		c.ok("Quick Mode extended, %s left", gate.FormatRemaining())
	case "disable":
		if err := gate.Disable(ctx); err != nil {
			return err
		}
		c.ok("Quick Mode off")
	case "status":
		if !gate.State().Enabled {
			fmt.Fprintln(c.out, "Quick Mode is off")
			return nil
		}
		fmt.Fprintf(c.out, "Quick Mode is on, %s left\n", gate.FormatRemaining())
	case "watch":
		return watchQuickMode(ctx, c, gate)
	default:
		return errUsage
	}
	return nil
}

// watchQuickMode follows the gate until it turns off or the user interrupts.
// SIGCONT, sent when a suspended process is resumed, re-checks the expiry.
func watchQuickMode(ctx context.Context, c *cli, gate *quickmode.Gate) error {
	if !gate.State().Enabled {
		fmt.Fprintln(c.out, "Quick Mode is off")
		return nil
	}

	done := make(chan struct{})
	var last string
	unsubscribe := gate.Subscribe(func(s quickmode.State) {
		if !s.Enabled {
			select {
			case <-done:
			default:
				close(done)
			}
			return
		}
		if text := quickmode.FormatRemaining(s.Remaining); text != last {
			last = text
			fmt.Fprintf(c.out, "\r%s left   ", text)
		}
	})
	defer unsubscribe()

	resumed := make(chan os.Signal, 1)
	signal.Notify(resumed, syscall.SIGCONT)
	defer signal.Stop(resumed)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil
		case <-done:
			fmt.Fprintln(c.out)
			c.ok("Quick Mode ended")
			return nil
		case <-resumed:
			if err := gate.Resume(ctx); err != nil {
				return err
			}
		}
	}
}

func cmdTheme(ctx context.Context, c *cli, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	prefs := c.app.Theme
	switch args[0] {
	case "show":
		s := prefs.Settings()
		p := s.Palette()
		fmt.Fprintf(c.out, "%s dark=%t auto=%t\n", s.ThemeID, s.DarkMode, s.AutoMode)
		fmt.Fprintf(c.out, "primary %s  accent %s  background %s  text %s\n", p.Primary, p.Accent, p.Background, p.TextPrimary)
		return nil
	case "list":
		current := prefs.Settings().ThemeID
		for _, t := range theme.Themes() {
			marker := " "
			if t.ID == current {
				marker = "*"
			}
			fmt.Fprintf(c.out, "%s %-8s %s (%s)\n", marker, t.ID, t.Name, t.Primary)
		}
		return nil
	case "set":
		if len(args) != 2 {
			return errUsage
		}
		if err := prefs.SetTheme(ctx, args[1]); err != nil {
			return err
		}
		c.ok("Theme set to %s", args[1])
		return nil
	case "dark":
		if err := prefs.ToggleDarkMode(ctx); err != nil {
			return err
		}
		c.ok("Dark mode %s", onOff(prefs.Settings().DarkMode))
		return nil
	case "auto":
		if err := prefs.ToggleAutoMode(ctx); err != nil {
			return err
		}
		c.ok("Auto mode %s", onOff(prefs.Settings().AutoMode))
		return nil
	default:
		return errUsage
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatAmount(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}
