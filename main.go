package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/jirapatw/voicebook/agent/contract"
	convox "github.com/jirapatw/voicebook/agent/convo"
	llmx "github.com/jirapatw/voicebook/agent/llm"
	promptx "github.com/jirapatw/voicebook/agent/prompt"
	summaryx "github.com/jirapatw/voicebook/agent/summary"
	toolsx "github.com/jirapatw/voicebook/agent/tools"
	"github.com/jirapatw/voicebook/booking"
	avatarx "github.com/jirapatw/voicebook/pkg/avatar"
	configx "github.com/jirapatw/voicebook/pkg/config"
	logx "github.com/jirapatw/voicebook/pkg/logger"
	openaix "github.com/jirapatw/voicebook/pkg/openai"
)

type AppConfig struct {
	DevStore    bool   `envconfig:"DEV_STORE" split_words:"true" default:"false"`
	CatalogDays int    `envconfig:"CATALOG_DAYS" split_words:"true" default:"7"`
	CallerPhone string `envconfig:"CALLER_PHONE" split_words:"true"`
}

func main() {
	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*logCfg)

	appCfg := configx.MustNew[AppConfig]("")

	openaiCfg := configx.MustNew[openaix.Config]("OPENAI")
	client := openaix.NewClient(*openaiCfg)
	if client == nil {
		panic("failed to initialize openai client")
	}

	prompts := promptx.LoadPromptSet()
	modelCfg := configx.MustNew[llmx.Config]("LLM")
	model, err := llmx.NewModel(client, *modelCfg, prompts.Summarizer)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()

	var store booking.Store
	if appCfg.DevStore {
		store = booking.NewMemoryStore()
		log.Warn().Msg("using in-memory store; bookings will not survive a restart")
	} else {
		pgCfg := configx.MustNew[booking.PostgresConfig]("DATABASE")
		pg, err := booking.NewPostgresStore(ctx, *pgCfg)
		if err != nil {
			panic(err)
		}
		defer pg.Close()
		store = pg
	}

	catalog := booking.UpcomingCatalog(time.Now(), appCfg.CatalogDays)

	executor, err := toolsx.NewExecutor(store, catalog)
	if err != nil {
		panic(err)
	}
	loop, err := convox.NewLoop(model, executor, store, convox.NewCache(), prompts.Assistant)
	if err != nil {
		panic(err)
	}
	summarizer, err := summaryx.New(store, model)
	if err != nil {
		panic(err)
	}

	var provider *avatarx.Client
	if os.Getenv("AVATAR_URL") != "" {
		provider = avatarx.MustNew(*configx.MustNew[avatarx.Config]("AVATAR"))
	}

	if err := runSession(ctx, appCfg, store, loop, summarizer, model, provider); err != nil {
		log.Fatal().Err(err).Msg("session failed")
	}
}

// runSession drives one call over stdin, the in-repo stand-in for the
// out-of-scope call-provider transport. Lines are utterances; a line starting
// with @ names an audio file to transcribe first.
func runSession(
	ctx context.Context,
	cfg *AppConfig,
	store booking.Store,
	loop *convox.Loop,
	summarizer *summaryx.Summarizer,
	transcriber contractx.Transcriber,
	provider *avatarx.Client,
) error {
	sess, err := loop.StartSession(ctx, "", strings.TrimSpace(cfg.CallerPhone))
	if err != nil {
		return err
	}
	fmt.Printf("session %s started; say something (ctrl-d to hang up)\n", sess.ID)

	if provider != nil {
		if err := startProviderCall(ctx, store, provider, sess.ID, cfg.CallerPhone); err != nil {
			log.Error().Err(err).Msg("avatar call failed to start")
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		utterance := strings.TrimSpace(scanner.Text())
		if utterance == "" {
			continue
		}
		if path, ok := strings.CutPrefix(utterance, "@"); ok {
			utterance, err = transcribeFile(ctx, transcriber, path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("transcription failed")
				continue
			}
			fmt.Printf("you said: %s\n", utterance)
		}

		events, err := loop.HandleUtterance(ctx, sess.ID, utterance)
		if err != nil {
			return err
		}
		if done := drainTurn(events); done.EndCall {
			break
		}
	}

	result, err := summarizer.Finalize(ctx, sess.ID, "")
	if err != nil {
		return err
	}
	loop.EndSession(sess.ID)
	fmt.Printf("\ncall ended. %s\n", result.Summary)
	return nil
}

func drainTurn(events <-chan contractx.Event) contractx.Event {
	var last contractx.Event
	audioBytes := 0
	for ev := range events {
		switch ev.Kind {
		case contractx.EventTranscript:
			fmt.Print(ev.Text)
		case contractx.EventAudio:
			audioBytes += len(ev.Audio)
		case contractx.EventToolStarted:
			log.Debug().Str("tool", ev.Tool).Msg("tool started")
		case contractx.EventToolEnded:
			log.Debug().Str("tool", ev.Tool).Str("result", ev.Text).Msg("tool ended")
		case contractx.EventError:
			fmt.Print(ev.Text)
		}
		last = ev
	}
	fmt.Println()
	if audioBytes > 0 {
		log.Debug().Int("bytes", audioBytes).Msg("synthesized audio")
	}
	return last
}

func startProviderCall(ctx context.Context, store booking.Store, provider *avatarx.Client, sessionID, phone string) error {
	contextPrompt := ""
	if normalized, err := booking.NormalizePhone(phone); err == nil {
		if user, err := store.FindUserByPhone(ctx, normalized); err == nil {
			appts, err := store.ListAppointmentsByUser(ctx, user.ID)
			if err != nil {
				return err
			}
			contextPrompt = convox.JustInTimeContext(user, appts)
		}
	}
	call, err := provider.StartCall(ctx, sessionID, phone, contextPrompt)
	if err != nil {
		return err
	}
	log.Info().Str("call_id", call.ID).Str("join_url", call.JoinURL).Msg("avatar call started")
	return nil
}

func transcribeFile(ctx context.Context, transcriber contractx.Transcriber, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return transcriber.Transcribe(ctx, f.Name(), f)
}
