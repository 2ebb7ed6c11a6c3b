// CoachFlow - real-time conversational context orchestration for a voice coach
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/normanking/coachflow/internal/bus"
	"github.com/normanking/coachflow/internal/config"
	"github.com/normanking/coachflow/internal/conversation"
	"github.com/normanking/coachflow/internal/detect"
	"github.com/normanking/coachflow/internal/discovery"
	"github.com/normanking/coachflow/internal/logging"
	"github.com/normanking/coachflow/internal/memory"
	"github.com/normanking/coachflow/internal/orchestrator"
	"github.com/normanking/coachflow/internal/queue"
	"github.com/normanking/coachflow/internal/session"
)

func main() {
	syslog, err := logging.New(nil)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	zlogger := syslog.Zerolog()
	mainLog := syslog.Component("main")
	mainLog.Info().Msg("CoachFlow starting")

	cfg, err := config.Load()
	if err != nil {
		mainLog.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}
	mainLog.Info().
		Str("userID", cfg.User.ID).
		Str("detectionURL", cfg.Detection.ServerURL).
		Str("sessionURL", cfg.Session.ServerURL).
		Msg("Configuration loaded")

	eventBus := bus.NewEventBus()

	store := conversation.NewStore(conversation.StoreConfig{
		MaxRecentMessages: cfg.Conversation.MaxRecentMessages,
		MaxTopicHistory:   cfg.Conversation.MaxTopicHistory,
		SessionDuration:   cfg.Conversation.SessionDuration,
	})

	classifier := detect.NewHTTPClassifier(&detect.ClientConfig{
		ServerURL: cfg.Detection.ServerURL,
		Timeout:   cfg.Detection.Timeout,
	}, zlogger)
	detector := detect.NewDetector(classifier, zlogger)

	retriever := memory.NewHTTPRetriever(&memory.ClientConfig{
		ServerURL: cfg.Memory.ServerURL,
		Timeout:   cfg.Memory.Timeout,
	}, zlogger)
	pipeline := memory.NewPipeline(retriever, cfg.Memory.Limit, zlogger)

	filter := detect.NewTranscriptFilter(nil)
	fragments := detect.NewFragmentBuffer(detect.FragmentBufferConfig{})

	// The session's transcript handlers call into the orchestrator, which in
	// turn holds the session, so the variable is declared up front and the
	// closures bind it lazily. Connect happens after orch is assigned.
	var orch *orchestrator.Orchestrator

	liveSession := session.NewLiveSession(&session.Config{
		ServerURL:      cfg.Session.ServerURL,
		Timeout:        cfg.Session.Timeout,
		ReconnectDelay: cfg.Session.ReconnectDelay,
		MaxReconnects:  cfg.Session.MaxReconnects,
	}, session.Handlers{
		OnUserTranscript: func(text string) { fragments.Add(text) },
		OnAITranscript:   func(text string) { orch.OnAISpeech(text) },
		OnTurnComplete:   func() { orch.OnTurnComplete() },
	}, zlogger)

	msgQueue := queue.New(queue.Config{
		Cooldown:   cfg.Queue.Cooldown,
		MessageTTL: cfg.Queue.MessageTTL,
	}, func(item queue.Item) error {
		return liveSession.SendClientContent(item.Content, false, orchestrator.RoleSystem)
	}, zlogger)

	orch = orchestrator.New(store, detector, pipeline, msgQueue, liveSession, eventBus, zlogger, orchestrator.Options{
		UserID:                   cfg.User.ID,
		EnableMemoryRetrieval:    cfg.Memory.Enabled,
		EmotionResponseThreshold: cfg.Detection.EmotionResponseThreshold,
		ClassifyContextMessages:  cfg.Detection.ContextMessages,
	})

	config.Watch(func(fresh *config.Config) {
		mainLog.Info().Msg("Configuration reloaded")
		orch.UpdateOptions(orchestrator.Options{
			UserID:                   fresh.User.ID,
			EnableMemoryRetrieval:    fresh.Memory.Enabled,
			EmotionResponseThreshold: fresh.Detection.EmotionResponseThreshold,
			ClassifyContextMessages:  fresh.Detection.ContextMessages,
		})
	})

	subscribeEvents(eventBus, syslog)

	discoveryService := discovery.NewService(&discovery.Config{
		CustomURLs: []string{cfg.Detection.ServerURL, cfg.Memory.ServerURL},
	}, zlogger)
	discoveryService.SetOnUpdate(func(backends []*discovery.Backend) {
		for _, b := range backends {
			mainLog.Debug().
				Str("service", b.Name).
				Str("url", b.URL).
				Str("status", b.Status).
				Int64("latencyMs", b.Latency).
				Msg("Backend status")
		}
	})
	discoveryService.Start()
	defer discoveryService.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := liveSession.Connect(ctx); err != nil {
		mainLog.Warn().Err(err).Msg("Live session unavailable, running in offline mode")
	}
	defer liveSession.Close()

	// Live transcripts arrive as fragments; release them to the orchestrator
	// once there is enough to classify or the speaker pauses.
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !fragments.ShouldFlush() {
					continue
				}
				if text, ok := filter.Clean(fragments.Flush()); ok {
					orch.OnUserSpeech(text)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		mainLog.Info().Msg("Shutting down")
		liveSession.Close()
		syslog.Close()
		os.Exit(0)
	}()

	runREPL(orch, filter)
}

// subscribeEvents logs orchestration events as they happen.
func subscribeEvents(eventBus *bus.EventBus, syslog *logging.Logger) {
	evLog := syslog.Component("events")

	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeTopicChanged,
		bus.EventTypeEmotionChanged,
		bus.EventTypePhaseChanged,
		bus.EventTypeMemoryRetrievalStarted,
		bus.EventTypeMemoryRetrieved,
		bus.EventTypeMessageQueued,
		bus.EventTypeMessageSent,
		bus.EventTypeSessionInterrupted,
	}, func(event bus.Event) {
		evLog.Info().
			Str("event", string(event.Type)).
			Interface("data", event.Data).
			Msg("Event")
	})
}

// runREPL reads stdin lines as user utterances. Lines starting with "/" drive
// the rest of the pipeline by hand, useful when no live session is attached.
func runREPL(orch *orchestrator.Orchestrator, filter *detect.TranscriptFilter) {
	fmt.Println("CoachFlow console. Plain lines are user speech.")
	fmt.Println("Commands: /ai <text>  /turn  /recall <topic>  /status  /reset  /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if cleaned, ok := filter.Clean(line); ok {
				orch.OnUserSpeech(cleaned)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "/ai":
			orch.OnAISpeech(arg)
		case "/turn":
			orch.OnTurnComplete()
		case "/recall":
			orch.TriggerMemoryRetrieval(arg, nil)
		case "/status":
			printStatus(orch)
		case "/reset":
			orch.Reset()
			fmt.Println("Session reset.")
		case "/quit":
			return
		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}

func printStatus(orch *orchestrator.Orchestrator) {
	snap := orch.Context()
	fmt.Printf("Phase:        %s\n", snap.Phase)
	fmt.Printf("Topic:        %s\n", orEmpty(snap.CurrentTopic, "(none)"))
	fmt.Printf("Topic flow:   %s\n", orEmpty(strings.Join(snap.TopicFlow, " -> "), "(none)"))
	fmt.Printf("Emotion:      %s (%.1f)\n", snap.Emotion, snap.EmotionIntensity)
	fmt.Printf("Messages:     %d\n", snap.MessageCount)
	fmt.Printf("Elapsed:      %s, remaining %s\n", snap.Elapsed, snap.Remaining)
	fmt.Printf("Queue size:   %d\n", orch.QueueSize())
	if pending, ok := orch.PendingMemory(); ok {
		fmt.Printf("Retrieval:    %s (%d memories)\n", pending.Topic, pending.Count)
	}
	if snap.Summary != "" {
		fmt.Printf("Summary:      %s\n", snap.Summary)
	}
}

func orEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
