package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"servifind/internal/api"
	"servifind/internal/booking"
	"servifind/internal/config"
	"servifind/internal/credentials"
	"servifind/internal/events"
	"servifind/internal/export"
	"servifind/internal/metrics"
	"servifind/internal/models"
	"servifind/internal/payment"
	"servifind/internal/session"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SERVIFIND_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store credentials.Store
	if cfg.Database.Path != "" {
		sqliteStore, err := credentials.NewSQLiteStore(cfg.Database.Path, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open credential store")
		}
		defer sqliteStore.Close()
		store = sqliteStore
	} else {
		logger.Warn().Msg("no database path configured, credentials will not persist")
		store = credentials.NewMemoryStore()
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.APITimeout(), logger)
	client.UseRateLimit(cfg.API.RateLimitPerSec, cfg.API.RateLimitBurst)
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	bus := events.NewBus()
	bus.Subscribe(events.TypeBookingCompleted, func(ev events.Event) {
		providerID, _ := ev.Payload.(string)
		client.InvalidateProviders(ctx, providerID)
		if provider, err := client.GetProvider(ctx, providerID); err == nil {
			fmt.Printf("Provider %s rating is now %.1f\n", provider.Name, provider.Rating)
		}
	})
	bus.Subscribe(events.TypeSessionInvalidated, func(events.Event) {
		fmt.Println("You are no longer signed in. Please log in again.")
	})

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveMetrics(cfg.Monitoring.PrometheusPort, logger)
	}

	sess := session.NewManager(client, store, bus, logger)
	if err := sess.Bootstrap(ctx); err != nil {
		logger.Debug().Err(err).Msg("no restored session")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	if err := run(ctx, os.Args[1], os.Args[2:], client, sess, bus, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: servifind <command> [flags]

commands:
  login      -email -password
  register   -name -email -password -role
  logout
  whoami
  forgot-password -email
  reset-password  -email -otp -password
  providers  [-query] [-location]
  provider   -id
  book       -provider -service -date -slot
  bookings   [-export file.xlsx]
  review     -provider -booking -rating [-comment]

provider commands:
  services
  service-add   -name -price -duration [-desc]
  service-avail -id -date [-add-slot | -rm-slot | -rm-date]
  service-rm    -id
  profile       [-service] [-location]`)
}

func run(ctx context.Context, cmd string, args []string, client *api.Client, sess *session.Manager, bus *events.Bus, cfg *config.Config, logger zerolog.Logger) error {
	switch cmd {
	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		fs.Parse(args)
		user, err := sess.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (%s)\n", user.Name, user.Role)
		return nil

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		role := fs.String("role", "user", "user or provider")
		fs.Parse(args)
		user, err := sess.Register(ctx, *name, *email, *password, *role)
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s as %s\n", user.Email, user.Role)
		return nil

	case "logout":
		return sess.Logout(ctx)

	case "whoami":
		user := sess.CurrentUser()
		if user == nil {
			fmt.Println("Not signed in")
			return nil
		}
		fmt.Printf("%s <%s> (%s)\n", user.Name, user.Email, user.Role)
		return nil

	case "providers":
		fs := flag.NewFlagSet("providers", flag.ExitOnError)
		query := fs.String("query", "", "free-text search")
		location := fs.String("location", "", "location filter")
		fs.Parse(args)
		providers, err := client.ListProviders(ctx, *query, *location)
		if err != nil {
			return err
		}
		for _, p := range providers {
			fmt.Printf("%s  %-24s %-16s %-12s %.1f\n", p.ID, p.Name, p.Service, p.Location, p.Rating)
		}
		return nil

	case "provider":
		fs := flag.NewFlagSet("provider", flag.ExitOnError)
		id := fs.String("id", "", "provider id")
		fs.Parse(args)
		provider, err := client.GetProvider(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s, rating %.1f)\n", provider.Name, provider.Location, provider.Rating)
		for _, svc := range provider.Services {
			fmt.Printf("  %s  %-24s %d (%s)\n", svc.ID, svc.Name, svc.Price, svc.Duration)
			for _, avail := range svc.Availability {
				fmt.Printf("      %s: %s\n", avail.Date, strings.Join(avail.Slots, ", "))
			}
		}
		return nil

	case "book":
		return runBook(ctx, args, client, sess, bus, cfg, logger)

	case "bookings":
		fs := flag.NewFlagSet("bookings", flag.ExitOnError)
		exportPath := fs.String("export", "", "write history to this .xlsx file")
		fs.Parse(args)
		bookings, err := api.ListMyBookings(ctx, sess)
		if err != nil {
			return err
		}
		if *exportPath != "" {
			f, err := os.Create(*exportPath)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := export.Bookings(bookings, f); err != nil {
				return err
			}
			fmt.Printf("Wrote %d bookings to %s\n", len(bookings), *exportPath)
			return nil
		}
		for _, b := range bookings {
			fmt.Printf("%s  %s %s  %s\n", b.ID, b.Date, b.Slot, b.PaymentStatus)
		}
		return nil

	case "forgot-password":
		fs := flag.NewFlagSet("forgot-password", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		fs.Parse(args)
		msg, err := client.ForgotPassword(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil

	case "reset-password":
		fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		otp := fs.String("otp", "", "one-time code from email")
		password := fs.String("password", "", "new password")
		fs.Parse(args)
		if _, err := client.VerifyOTP(ctx, *email, *otp); err != nil {
			return err
		}
		msg, err := client.ResetPassword(ctx, *email, *otp, *password)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil

	case "services":
		services, err := api.ListMyServices(ctx, sess)
		if err != nil {
			return err
		}
		for _, svc := range services {
			fmt.Printf("%s  %-24s %d (%s)\n", svc.ID, svc.Name, svc.Price, svc.Duration)
			for _, avail := range svc.Availability {
				fmt.Printf("    %s: %s\n", avail.Date, strings.Join(avail.Slots, ", "))
			}
		}
		return nil

	case "service-add":
		fs := flag.NewFlagSet("service-add", flag.ExitOnError)
		name := fs.String("name", "", "service name")
		desc := fs.String("desc", "", "description")
		price := fs.Int64("price", 0, "price in minor units")
		duration := fs.String("duration", "", "duration label, e.g. 45min")
		fs.Parse(args)
		svc, err := api.CreateService(ctx, sess, api.ServiceInput{
			Name: *name, Description: *desc, Price: *price, Duration: *duration,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created service %s\n", svc.ID)
		return nil

	case "service-rm":
		fs := flag.NewFlagSet("service-rm", flag.ExitOnError)
		id := fs.String("id", "", "service id")
		fs.Parse(args)
		if err := api.DeleteService(ctx, sess, *id); err != nil {
			return err
		}
		fmt.Println("Service deleted")
		return nil

	case "service-avail":
		return runServiceAvail(ctx, args, sess)

	case "profile":
		fs := flag.NewFlagSet("profile", flag.ExitOnError)
		service := fs.String("service", "", "profession label")
		location := fs.String("location", "", "service area")
		fs.Parse(args)
		if *service == "" && *location == "" {
			profile, err := api.GetProviderProfile(ctx, sess)
			if err != nil {
				return err
			}
			fmt.Printf("%s in %s\n", profile.Service, profile.Location)
			return nil
		}
		profile, err := api.GetProviderProfile(ctx, sess)
		if err != nil {
			return err
		}
		if *service != "" {
			profile.Service = *service
		}
		if *location != "" {
			profile.Location = *location
		}
		updated, err := api.UpdateProviderProfile(ctx, sess, *profile)
		if err != nil {
			return err
		}
		fmt.Printf("Profile updated: %s in %s\n", updated.Service, updated.Location)
		return nil

	case "review":
		fs := flag.NewFlagSet("review", flag.ExitOnError)
		providerID := fs.String("provider", "", "provider id")
		bookingID := fs.String("booking", "", "booking id")
		rating := fs.Int("rating", 0, "rating 1-5")
		comment := fs.String("comment", "", "review text")
		fs.Parse(args)
		if _, err := api.SubmitReview(ctx, sess, *providerID, *bookingID, *rating, *comment); err != nil {
			return err
		}
		client.InvalidateProviders(ctx, *providerID)
		fmt.Println("Review submitted")
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// runServiceAvail edits one service's availability calendar. The edits are
// applied locally with the availability reducers, then the whole service is
// written back in one update.
func runServiceAvail(ctx context.Context, args []string, sess *session.Manager) error {
	fs := flag.NewFlagSet("service-avail", flag.ExitOnError)
	id := fs.String("id", "", "service id")
	date := fs.String("date", "", "date YYYY-MM-DD")
	addSlot := fs.String("add-slot", "", "slot label to add")
	rmSlot := fs.String("rm-slot", "", "slot label to remove")
	rmDate := fs.Bool("rm-date", false, "remove the whole date")
	fs.Parse(args)
	if *date == "" {
		return fmt.Errorf("a -date is required")
	}

	services, err := api.ListMyServices(ctx, sess)
	if err != nil {
		return err
	}
	var target *models.Service
	for i := range services {
		if services[i].ID == *id {
			target = &services[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no service %q", *id)
	}

	avail := target.Availability
	switch {
	case *rmDate:
		avail = models.RemoveDate(avail, *date)
	case *addSlot != "":
		avail = models.AddSlot(avail, *date, *addSlot)
	case *rmSlot != "":
		avail = models.RemoveSlot(avail, *date, *rmSlot)
	default:
		avail = models.UpsertDate(avail, *date)
	}

	updated, err := api.UpdateService(ctx, sess, target.ID, api.ServiceInput{
		Name:         target.Name,
		Description:  target.Description,
		Price:        target.Price,
		Duration:     target.Duration,
		Availability: avail,
	})
	if err != nil {
		return err
	}
	for _, a := range updated.Availability {
		fmt.Printf("%s: %s\n", a.Date, strings.Join(a.Slots, ", "))
	}
	return nil
}

func runBook(ctx context.Context, args []string, client *api.Client, sess *session.Manager, bus *events.Bus, cfg *config.Config, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	providerID := fs.String("provider", "", "provider id")
	serviceID := fs.String("service", "", "service id")
	date := fs.String("date", "", "date YYYY-MM-DD")
	slot := fs.String("slot", "", "slot label")
	fs.Parse(args)

	provider, err := client.GetProvider(ctx, *providerID)
	if err != nil {
		return err
	}

	selector := booking.NewSelector()
	found := false
	for _, svc := range provider.Services {
		if svc.ID == *serviceID {
			selector.SelectService(provider.ID, svc)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("provider %s has no service %q", provider.Name, *serviceID)
	}
	if err := selector.SelectDate(*date); err != nil {
		return fmt.Errorf("date %q is not offered: %w", *date, err)
	}
	if err := selector.SelectSlot(*slot); err != nil {
		return fmt.Errorf("slot %q is not offered on %s: %w", *slot, *date, err)
	}

	orch := booking.NewOrchestrator(sess, &promptGateway{in: os.Stdin, keyID: cfg.Payment.KeyID}, bus, logger)
	if err := orch.Start(ctx, selector.Selection()); err != nil {
		if errors.Is(err, booking.ErrNoSession) {
			return fmt.Errorf("please log in first: %w", err)
		}
		return err
	}

	for orch.State() == booking.StateCancelled {
		fmt.Print("Payment cancelled; booking is held. Retry payment? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "y" {
			break
		}
		if err := orch.Retry(ctx); err != nil {
			return err
		}
	}

	switch orch.State() {
	case booking.StateCompleted:
		b := orch.Booking()
		fmt.Printf("Booking %s confirmed, payment %s\n", b.ID, b.PaymentStatus)
	case booking.StateCancelled:
		fmt.Println("Payment not completed; re-run with the same booking to pay later.")
	case booking.StateFailed:
		if f := orch.Failure(); f != nil && f.Kind == api.KindPaymentGateway {
			return fmt.Errorf("payment was attempted but could not be confirmed: %s", f.Message)
		} else if f != nil {
			return fmt.Errorf("booking failed: %s", f.Message)
		}
	}
	return nil
}

// promptGateway is the CLI stand-in for a hosted checkout surface: it prints
// the order and reads the gateway identifiers from the terminal. An empty
// payment id dismisses the checkout.
type promptGateway struct {
	in    *os.File
	keyID string
}

func (g *promptGateway) Open(_ context.Context, order payment.Order, cb payment.Callbacks) error {
	fmt.Printf("Payment order %s: %d %s (receipt %s, key %s)\n",
		order.OrderID, order.Amount, order.Currency, order.Receipt, g.keyID)
	reader := bufio.NewReader(g.in)

	fmt.Print("Gateway payment id (empty to cancel): ")
	paymentID, err := reader.ReadString('\n')
	if err != nil {
		cb.OnDismissed()
		return nil
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		cb.OnDismissed()
		return nil
	}

	fmt.Print("Gateway signature: ")
	signature, _ := reader.ReadString('\n')

	cb.OnAuthorized(payment.Result{
		OrderID:   order.OrderID,
		PaymentID: paymentID,
		Signature: strings.TrimSpace(signature),
	})
	return nil
}

func serveMetrics(port int, logger zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
