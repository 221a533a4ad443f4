package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"
	"peercall/internal/core/services"
	"peercall/internal/infrastructure/credentials"
	"peercall/internal/infrastructure/media"
	"peercall/internal/infrastructure/monitoring"
	"peercall/internal/infrastructure/push"
	"peercall/internal/infrastructure/repositories"
	"peercall/pkg/config"
	"peercall/pkg/logger"
	"peercall/pkg/utils"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// consoleRinger is the terminal presentation of an incoming call.
type consoleRinger struct{}

func (consoleRinger) StartRinging(caller domain.Participant) {
	fmt.Printf("\n*** incoming call from %s (%s): type 'accept' or 'reject'\n> ", caller.Name, caller.Address)
}

func (consoleRinger) StopRinging() {}

func main() {
	var (
		name         = flag.String("name", "", "display name for outgoing calls")
		clientID     = flag.String("id", "", "push address of this device (generated when empty)")
		authorityURL = flag.String("authority", "", "credential authority base URL (local mint when empty)")
	)
	flag.Parse()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	address := domain.PushAddress(*clientID)
	if address == "" {
		address = domain.PushAddress(utils.GenerateClientID())
	}
	displayName := *name
	if displayName == "" {
		displayName = string(address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal channel attached to the relay.
	channel := push.NewWSChannel(cfg.Push.RelayURL, address, log)
	go func() {
		if err := channel.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("signal channel stopped", "error", err)
		}
	}()

	// Credential authority: remote when configured, local mint otherwise.
	var authority ports.CredentialAuthority
	if *authorityURL != "" {
		authority = credentials.NewHTTPAuthority(*authorityURL, log)
	} else {
		log.Warn("no authority configured, minting credentials locally")
		authority = credentials.NewLocalAuthority(
			credentials.NewTokenMinter(cfg.Auth.APIKey, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()
	history := repoFactory.CreateHistoryRepository()
	contacts := repoFactory.CreateContactRepository()

	room := media.NewRoomClient(media.Config{}, log)

	collector := monitoring.NewPrometheusCollector()
	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, log)
	}

	call := services.NewCallService(
		room,
		channel,
		authority,
		history,
		consoleRinger{},
		collector,
		log,
		services.Options{
			MediaEndpoint:    cfg.Media.Endpoint,
			Local:            domain.Participant{ID: string(address), Name: displayName, Address: address},
			RingTimeout:      cfg.Call.RingTimeout,
			EndedGrace:       cfg.Call.EndedGrace,
			GovernorDebounce: cfg.Call.GovernorDebounce,
		},
	)
	go func() {
		if err := call.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("call service stopped", "error", err)
		}
	}()

	go watchState(ctx, call)

	fmt.Printf("peercall: device %s, relay %s\n", address, cfg.Push.RelayURL)
	fmt.Println("commands: call <address> [name] | accept | reject | end | mic | cam | switch | history | contacts | status | quit")

	go repl(ctx, cancel, call, contacts, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	fmt.Println("\nbye")
}

// serveMetrics exposes the client's call metrics on a local port.
func serveMetrics(port int, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(fmt.Sprintf("127.0.0.1:%d", port), mux); err != nil {
		log.Warnw("metrics server stopped", "error", err)
	}
}

// watchState prints call state transitions as they happen.
func watchState(ctx context.Context, call *services.CallService) {
	updates := call.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			switch snap.State {
			case domain.CallStateIdle:
				fmt.Print("\r[idle]\n> ")
			case domain.CallStateEnded:
				fmt.Printf("\r[call ended: %s]\n> ", snap.Reason)
			case domain.CallStateConnected:
				fmt.Printf("\r[connected to %s]\n> ", snap.RemoteParty.Name)
			default:
				fmt.Printf("\r[%s]\n> ", snap.State)
			}
		}
	}
}

func repl(ctx context.Context, cancel context.CancelFunc, call *services.CallService, contacts ports.ContactRepository, log *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			cancel()
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		cmdCtx, cmdCancel := context.WithTimeout(ctx, 30*time.Second)
		var err error
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("usage: call <address> [name]")
				break
			}
			contact := domain.Contact{
				ID:      fields[1],
				Name:    fields[1],
				Address: domain.PushAddress(fields[1]),
			}
			if len(fields) > 2 {
				contact.Name = strings.Join(fields[2:], " ")
			}
			if upErr := contacts.Upsert(cmdCtx, &contact); upErr != nil {
				log.Warnw("failed to save contact", "error", upErr)
			}
			err = call.Initiate(cmdCtx, contact)
		case "accept":
			err = call.Accept(cmdCtx)
		case "reject":
			err = call.Reject(cmdCtx)
		case "end":
			err = call.End(cmdCtx)
		case "mic":
			err = call.ToggleMicrophone(cmdCtx)
		case "cam":
			err = call.ToggleCamera(cmdCtx)
		case "switch":
			err = call.SwitchCamera(cmdCtx)
		case "status":
			snap := call.State()
			fmt.Printf("state=%s room=%s mic_muted=%v cam_muted=%v network_mute=%v\n",
				snap.State, snap.Room, snap.Mute.MicrophoneMuted, snap.Mute.CameraMuted, snap.NetworkMute)
		case "history":
			printHistory(cmdCtx, call)
		case "contacts":
			list, listErr := contacts.List(cmdCtx)
			if listErr != nil {
				err = listErr
				break
			}
			for _, c := range list {
				fmt.Printf("  %s  %s\n", c.Name, c.Address)
			}
		case "quit", "exit":
			cmdCancel()
			cancel()
			return
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
		cmdCancel()

		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func printHistory(ctx context.Context, call *services.CallService) {
	entries, err := call.History(ctx, 20)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("  (no calls yet)")
		return
	}
	for _, e := range entries {
		video := "audio"
		if e.WasVideoCall {
			video = "video"
		}
		fmt.Printf("  %s  %-8s %-20s %6s  %s\n",
			e.Timestamp.Format("2006-01-02 15:04"), e.Type,
			utils.TruncateString(e.ContactName, 20),
			utils.FormatDuration(time.Duration(e.Duration)*time.Second), video)
	}
}
