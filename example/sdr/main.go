package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tbxark/leadagent/agent"
	"github.com/tbxark/leadagent/config"
	"github.com/tbxark/leadagent/crm"
	"github.com/tbxark/leadagent/extract"
	"github.com/tbxark/leadagent/scheduling"
	"github.com/tbxark/leadagent/server"
	"github.com/tbxark/leadagent/transcript"
)

const sessionTTL = 24 * time.Hour

func main() {
	conf := flag.String("config", "", "path to JSON config file")
	cli := flag.Bool("cli", false, "chat on stdin instead of serving only HTTP")
	flag.Parse()
	cfg, err := config.Load(*conf)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	slog.SetDefault(config.NewLogger(cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := startApp(ctx, stop, cfg, *cli); err != nil {
		log.Fatalf("start app: %v", err)
	}
}

func startApp(ctx context.Context, stop context.CancelFunc, conf *config.Config, cli bool) error {
	logger := slog.Default()
	loc := scheduling.LoadLocation(conf.Google.TimeZone)

	chatConf := &openai.ChatModelConfig{
		APIKey:  conf.LLM.APIKey,
		Model:   conf.LLM.Model,
		BaseURL: conf.LLM.BaseURL,
		Timeout: conf.LLM.Timeout.Std(),
	}
	if conf.LLM.MaxTokens > 0 {
		chatConf.MaxTokens = &conf.LLM.MaxTokens
	}
	cm, err := openai.NewChatModel(ctx, chatConf)
	if err != nil {
		return fmt.Errorf("create chat model: %w", err)
	}

	var calendar scheduling.Scheduler
	google, err := scheduling.NewGoogleCalendar(ctx, scheduling.GoogleConfig{
		ClientID:     conf.Google.ClientID,
		ClientSecret: conf.Google.ClientSecret,
		RedirectURL:  conf.Google.RedirectURL,
		RefreshToken: conf.Google.RefreshToken,
		CalendarID:   conf.Google.CalendarID,
		TimeZone:     conf.Google.TimeZone,
	}, scheduling.WithGoogleLogger(logger))
	switch {
	case err == nil:
		calendar = google
	case errors.Is(err, scheduling.ErrNotConfigured):
		logger.Warn("Google Calendar not configured, offering fixed slots")
	default:
		return fmt.Errorf("create google calendar: %w", err)
	}
	sched := scheduling.NewFallback(calendar, loc)
	sched.Logger = logger

	var crmClient crm.Client
	if conf.Pipefy.Enabled() {
		crmClient, err = crm.NewPipefy(crm.PipefyConfig{
			APIToken: conf.Pipefy.APIToken,
			PipeID:   conf.Pipefy.PipeID,
			URL:      conf.Pipefy.URL,
		}, logger)
		if err != nil {
			return fmt.Errorf("create pipefy client: %w", err)
		}
	} else {
		logger.Warn("Pipefy not configured, keeping leads in memory")
		crmClient = crm.NewMemory()
	}

	var extractor extract.Extractor = extract.NewHeuristicExtractor()
	if conf.Agent.ExtractWithLLM {
		llmExtractor, err := extract.NewToolBasedExtractor(cm)
		if err != nil {
			return err
		}
		chain := extract.NewChainExtractor(extractor, llmExtractor)
		chain.Logger = logger
		extractor = chain
	}

	flow, err := agent.NewFlow(cm, sched,
		agent.WithExtractor(extractor),
		agent.WithPreamble(transcript.SystemPrompt(transcript.WithCompanyName(conf.Agent.CompanyName))),
		agent.WithDaysAhead(conf.Agent.DaysAhead),
		agent.WithFlowLogger(logger),
	)
	if err != nil {
		return err
	}
	lifecycle := agent.NewLifecycle(sched, crm.NewRegistrar(crmClient), agent.WithLifecycleLogger(logger))

	serviceOpts := []agent.ServiceOption{
		agent.WithGreeting(transcript.Greeting(conf.Agent.CompanyName)),
		agent.WithServiceLogger(logger),
	}
	if conf.Redis.Addr == "" {
		serviceOpts = append(serviceOpts, agent.WithStateStore(agent.NewMemoryStateStore(sessionTTL)))
	} else {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		serviceOpts = append(serviceOpts,
			agent.WithStateStore(agent.NewStateStore(agent.NewRedisCache[agent.State](rdb, sessionTTL))),
			agent.WithHistoryStore(agent.NewRedisHistory(rdb, sessionTTL)),
			agent.WithLocker(agent.NewRedisLocker(rdb, conf.HTTP.RequestTimeout.Std())),
		)
	}
	service := agent.NewService(flow, lifecycle, serviceOpts...)

	srv := server.New(service,
		server.WithLogger(logger),
		server.WithRequestTimeout(conf.HTTP.RequestTimeout.Std()),
		server.WithRateLimit(conf.HTTP.RateLimit, conf.HTTP.RateBurst),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, conf.HTTP.Addr)
	})
	if cli {
		g.Go(func() error {
			defer stop()
			return chatLoop(gctx, service, conf.Agent.CompanyName)
		})
	}
	return g.Wait()
}

func chatLoop(ctx context.Context, service *agent.Service, company string) error {
	sessionID := "cli"
	ctx = agent.WithSessionID(ctx, sessionID)
	session, err := service.InitSession(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, turn := range session.Turns {
		fmt.Printf("\n%s: %s\n", company, turn.Content)
	}

	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: agent.NewAgent("SDR", "Qualifies inbound leads and books a discovery meeting", service),
	})
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Você: ")
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		iter := runner.Run(ctx, []adk.Message{schema.UserMessage(input)})
		for {
			event, ok := iter.Next()
			if !ok {
				break
			}
			if event.Err != nil {
				if errors.Is(event.Err, agent.ErrConversationClosed) {
					fmt.Println("Conversa encerrada.")
					return nil
				}
				if errors.Is(event.Err, agent.ErrBackend) {
					fmt.Printf("\n%s: %s\n", company, agent.ApologyMessage)
					continue
				}
				return event.Err
			}
			msg, mErr := event.Output.MessageOutput.GetMessage()
			if mErr != nil {
				return mErr
			}
			fmt.Printf("\n%s: %s\n======\n", company, msg.Content)
		}
		lead, err := service.Lead(ctx, sessionID)
		if err != nil {
			return err
		}
		if lead.Phase.Terminal() {
			fmt.Println("Conversa encerrada.")
			return nil
		}
	}
}
