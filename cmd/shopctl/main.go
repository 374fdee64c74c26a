package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/shopsphere/shopauth/bootstrap"
	"github.com/shopsphere/shopauth/gateway"
	"github.com/shopsphere/shopauth/internal/config"
	"github.com/shopsphere/shopauth/session"
	"github.com/shopsphere/shopauth/shopapi"
	"github.com/shopsphere/shopauth/subdomain"
	"github.com/shopsphere/shopauth/token/refresh"
	"github.com/shopsphere/shopauth/tokenstore"
	"github.com/shopsphere/shopauth/validation"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("shopctl failed")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		username = pflag.String("username", "", "account username")
		password = pflag.String("password", "", "account password")
		remember = pflag.Bool("remember", false, "ask the server for a long-lived refresh credential")
		shops    = pflag.StringArray("shop", nil, "shop slug to register (repeat 3-4 times)")
		verbose  = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	args := pflag.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	app, err := newApp()
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch args[0] {
	case "register":
		return app.register(ctx, *username, *password, *shops)
	case "login":
		return app.login(ctx, *username, *password, *remember)
	case "logout":
		return app.logout(ctx)
	case "whoami":
		return app.whoami(ctx)
	case "shops":
		return app.listShops(ctx)
	case "token":
		return app.printToken(ctx)
	case "verify":
		if len(args) < 2 {
			return errors.New("verify requires a host argument")
		}
		return app.verify(ctx, args[1])
	case "session":
		return app.keepSession(ctx)
	case "check-password":
		return app.checkPassword(*password)
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// app wires the full client stack: one cookie-jarred http.Client shared by
// the gateway, the refresh manager and the bare API calls.
type app struct {
	cfg      *config.Config
	store    *session.Store
	tokens   tokenstore.Repo
	api      *shopapi.Client
	boot     *bootstrap.Bootstrapper
	refresh  *refresh.Manager
	verifier *subdomain.Verifier
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	httpClient := &http.Client{Jar: jar, Timeout: cfg.HTTPTimeout}

	store := session.NewStore()
	tokens, err := tokenstore.NewFileRepo(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	refresher, err := refresh.NewManager(httpClient, store, tokens, cfg.APIBaseURL, refresh.WithInterval(cfg.RefreshInterval))
	if err != nil {
		return nil, err
	}

	gw, err := gateway.New(httpClient, store, tokens, refresher)
	if err != nil {
		return nil, err
	}

	api, err := shopapi.New(cfg.APIBaseURL, httpClient, gw, store, tokens)
	if err != nil {
		return nil, err
	}

	boot, err := bootstrap.New(store, tokens, api)
	if err != nil {
		return nil, err
	}

	verifier, err := subdomain.NewVerifier(store, api, boot.Ready(), cfg.ApexDomain)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    store,
		tokens:   tokens,
		api:      api,
		boot:     boot,
		refresh:  refresher,
		verifier: verifier,
	}, nil
}

func (a *app) register(ctx context.Context, username, password string, shops []string) error {
	user, err := a.api.Register(ctx, shopapi.RegisterParams{
		Username: username,
		Password: password,
		Shops:    shops,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s with %d shops\n", user.Username, len(user.Shops))
	return nil
}

func (a *app) login(ctx context.Context, username, password string, remember bool) error {
	user, err := a.api.Login(ctx, shopapi.LoginParams{
		Username:   username,
		Password:   password,
		RememberMe: remember,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Welcome back, %s\n", user.Username)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.api.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	sess, err := a.restoreSession(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> role=%s\n", sess.User.Username, sess.User.Email, sess.User.Role)
	return nil
}

func (a *app) listShops(ctx context.Context) error {
	sess, err := a.restoreSession(ctx)
	if err != nil {
		return err
	}
	for _, shop := range sess.User.Shops {
		fmt.Printf("%-20s %s\n", shop.Name, shop.DisplayName)
	}
	return nil
}

func (a *app) printToken(ctx context.Context) error {
	if _, err := a.restoreSession(ctx); err != nil {
		return err
	}
	token, err := a.store.TokenSource().Token()
	if err != nil {
		return err
	}
	fmt.Println(token.AccessToken)
	return nil
}

func (a *app) verify(ctx context.Context, host string) error {
	if err := a.boot.Run(ctx); err != nil {
		return err
	}
	decision := a.verifier.Verify(ctx, host)
	switch decision.State {
	case subdomain.StateNoTenant:
		fmt.Printf("%s carries no shop subdomain\n", host)
	case subdomain.StateAuthorized:
		fmt.Printf("Authorized for shop %q\n", decision.ShopName)
		if len(decision.ShopData) > 0 {
			var pretty map[string]any
			if err := json.Unmarshal(decision.ShopData, &pretty); err == nil {
				out, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Println(string(out))
			}
		}
	default:
		fmt.Printf("Access to %q denied: %s\n", decision.ShopName, decision.Reason)
	}
	return nil
}

// keepSession restores the session and keeps it alive with the proactive
// refresh loop until interrupted.
func (a *app) keepSession(ctx context.Context) error {
	displayBanner()
	sess, err := a.restoreSession(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Session active for %s; refreshing every %s. Ctrl-C to stop.\n", sess.User.Username, a.cfg.RefreshInterval)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.refresh.Run(runCtx)

	waitForStopSignal()
	return nil
}

func (a *app) checkPassword(password string) error {
	strength := validation.CheckPassword(password)
	fmt.Printf("Strength: %s (%d/5)\n", strength.Label(), strength.Score())
	for criterion, met := range map[string]bool{
		"at least 8 characters": strength.Length,
		"contains a number":     strength.Number,
		"contains uppercase":    strength.Uppercase,
		"contains lowercase":    strength.Lowercase,
		"contains a symbol":     strength.SpecialChar,
	} {
		mark := " "
		if met {
			mark = "x"
		}
		fmt.Printf("  [%s] %s\n", mark, criterion)
	}
	return nil
}

func (a *app) restoreSession(ctx context.Context) (session.Session, error) {
	if err := a.boot.Run(ctx); err != nil {
		return session.Session{}, err
	}
	sess, ok := a.store.Current()
	if !ok {
		return session.Session{}, errors.New("not signed in (run: shopctl login)")
	}
	return sess, nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayBanner() {
	myFigure := figure.NewFigure("ShopSphere", "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: shopctl [flags] <command>

Commands:
  register        create an account (--username --password --shop x3)
  login           sign in (--username --password [--remember])
  logout          sign out and clear the stored token
  whoami          show the signed-in user
  shops           list the user's shops
  token           print the current access token
  verify <host>   check access to a shop subdomain
  session         keep the session alive until interrupted
  check-password  report password strength (--password)`)
}
