// Command tutor-worker is the single binary entrypoint for both halves of
// the Dual-Worker Runtime (§4.5). AGENT_TYPE (config.Config.AgentType)
// selects which one this process runs: "orchestrator" for the pipeline
// worker, "english" for the realtime worker. Registering the resulting
// worker against the media-plane control service's actual job queue, and
// subscribing to its conversation_item_added/user_input_transcribed/close
// signals, belongs to that control service's own client library — an
// external collaborator this binary does not vendor (§1).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/brightclass/voicetutor/config"
	"github.com/brightclass/voicetutor/hitl"
	"github.com/brightclass/voicetutor/modelclient"
	"github.com/brightclass/voicetutor/routing"
	"github.com/brightclass/voicetutor/safety"
	"github.com/brightclass/voicetutor/session"
	"github.com/brightclass/voicetutor/store"
	"github.com/brightclass/voicetutor/telemetry"
	"github.com/brightclass/voicetutor/transcript"
	"github.com/brightclass/voicetutor/transport"
	"github.com/brightclass/voicetutor/tutoragent"
	"github.com/brightclass/voicetutor/worker"
)

func main() {
	configPath := flag.String("config", "", "additional directory to search for config.yaml")
	flag.Parse()

	var extraPaths []string
	if *configPath != "" {
		extraPaths = append(extraPaths, *configPath)
	}

	cfg, err := config.Load(extraPaths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tutor-worker: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLoggerFromConfig(cfg.LogLevel, cfg.LogFormat)
	ctx := telemetry.WithLogger(context.Background(), logger)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Error(ctx, "init tracer failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error(ctx, "tracer shutdown failed", "error", err)
		}
	}()

	promExporter, err := telemetry.InitMeter(cfg.Telemetry.ServiceName)
	if err != nil {
		logger.Error(ctx, "init meter failed", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Store.DSN)
	if err != nil {
		logger.Error(ctx, "open store failed", "error", err)
		os.Exit(1)
	}
	if err := db.EnsureTables(ctx); err != nil {
		logger.Error(ctx, "ensure tables failed", "error", err)
		os.Exit(1)
	}

	filter, err := newSafetyFilter(cfg, db)
	if err != nil {
		logger.Error(ctx, "build safety filter failed", "error", err)
		os.Exit(1)
	}

	tp := transport.NewLiveKitClient(cfg.Transport.ControlServiceURL, cfg.Transport.APIKey, cfg.Transport.APISecret)

	escalation, err := hitl.New("livekit", hitl.Config{
		APIKey:    cfg.Transport.APIKey,
		APISecret: cfg.Transport.APISecret,
		TokenTTL:  time.Hour,
		Store:     db,
	})
	if err != nil {
		logger.Error(ctx, "build escalation manager failed", "error", err)
		os.Exit(1)
	}

	healthChecks := telemetry.NewHealthRegistry()
	healthChecks.Register("store", telemetry.HealthCheckerFunc(func(ctx context.Context) telemetry.HealthResult {
		status := telemetry.Healthy
		if err := db.Ping(ctx); err != nil {
			status = telemetry.Unhealthy
			return telemetry.HealthResult{Status: status, Message: err.Error()}
		}
		return telemetry.HealthResult{Status: status}
	}))

	healthSrv := telemetry.NewHealthServer(healthChecks, promExporter)
	go func() {
		if err := healthSrv.Serve(ctx, cfg.Telemetry.MetricsAddr); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "health server exited", "error", err)
		}
	}()

	switch cfg.AgentType {
	case "orchestrator":
		runOrchestrator(ctx, cfg, tp, db, escalation, filter, logger)
	case "english":
		runEnglish(ctx, cfg, tp, db, filter, logger)
	default:
		// config.Load already validates AgentType; unreachable in practice.
		logger.Error(ctx, "unknown agent type", "agent_type", cfg.AgentType)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info(ctx, "shutting down", "agent_type", cfg.AgentType)
}

// newSafetyFilter wires the Safety Filter from configuration. Moderation and
// rewrite both run against OpenAI's endpoints regardless of the configured
// inference provider, since omni-moderation-latest has no equivalent on the
// other providers this binary supports.
func newSafetyFilter(cfg *config.Config, audit safety.AuditSink) (*safety.Filter, error) {
	if cfg.Safety.APIKey == "" {
		return nil, fmt.Errorf("tutor-worker: safety.api_key is required")
	}
	moderation := safety.NewOpenAIModeration(cfg.Safety.APIKey, cfg.Safety.ModerationModel)
	rewriter := safety.NewOpenAIRewrite(cfg.Safety.APIKey, cfg.Safety.RewriteModel)
	return safety.New(moderation, rewriter, audit, cfg.Safety.FallbackSentence), nil
}

func providerConfig(cfg *config.Config) config.ProviderConfig {
	switch cfg.Model.Provider {
	case "anthropic":
		return cfg.Model.Anthropic
	case "bedrock":
		return cfg.Model.Bedrock
	case "ollama":
		return cfg.Model.Ollama
	default:
		return cfg.Model.OpenAI
	}
}

// subjectSystemPrompt holds each Guarded Agent's fixed system instructions,
// never sent to the realtime model object (§4.5: "the model object rejects
// any instruction argument").
var subjectSystemPrompt = map[session.Subject]string{
	session.Classifier: "You are a routing classifier for a K-12 tutoring session. Identify whether the student's question belongs to mathematics, history, or English, or whether it needs a human teacher, and call the matching tool. Do not answer the question yourself.",
	session.Math:        "You are a patient, encouraging mathematics tutor for a school-aged student. Explain concepts step by step, and if the question strays outside mathematics, hand off to the right specialist.",
	session.History:     "You are a patient, encouraging history tutor for a school-aged student. Ground explanations in cause and effect, and if the question strays outside history, hand off to the right specialist.",
	session.English:     "You are a friendly English language-practice partner for a school-aged student, focused on conversational fluency and correction.",
}

var subjectVoice = map[session.Subject]string{
	session.Classifier: "alloy",
	session.Math:        "verse",
	session.History:     "sage",
	session.English:     "alloy",
}

var subjectOpening = map[session.Subject]string{
	session.Classifier: "Hi! What would you like to work on today?",
	session.Math:        "Let's take a look at this together.",
	session.History:     "That's a great question to dig into.",
	session.English:     "Hi there! Let's practice some English together.",
}

func buildAgent(model modelclient.Provider, synth tutoragent.Synthesizer, filter *safety.Filter, sess *session.State, subject session.Subject, pendingQuestion string) *tutoragent.Agent {
	return tutoragent.New(string(subject), subjectSystemPrompt[subject], model, subjectVoice[subject], synth, filter, sess, subjectOpening[subject])
}

func runOrchestrator(ctx context.Context, cfg *config.Config, tp transport.Client, db *store.Client, escalation routing.EscalationClient, filter *safety.Filter, logger *telemetry.Logger) {
	model, err := modelclient.New(cfg.Model.Provider, providerConfig(cfg))
	if err != nil {
		logger.Error(ctx, "build model provider failed", "error", err)
		os.Exit(1)
	}
	synth := tutoragent.NewOpenAISynth(cfg.Model.OpenAI.APIKey, openai.TTSModel1)

	tr := transcript.New(tp, db, "pipeline")
	w := worker.New(tp, db, escalation, tr, filter,
		func(sess *session.State, pendingQuestion string) *tutoragent.Agent {
			return buildAgent(model, synth, filter, sess, session.Classifier, pendingQuestion)
		},
		func(sess *session.State) routing.SpecialistBuilder {
			return func(pendingQuestion string, seedHistory []modelclient.Message) *tutoragent.Agent {
				agent := buildAgent(model, synth, filter, sess, session.Math, pendingQuestion)
				agent.SeedHistory(seedHistory...)
				return agent
			}
		},
		func(sess *session.State) routing.SpecialistBuilder {
			return func(pendingQuestion string, seedHistory []modelclient.Message) *tutoragent.Agent {
				agent := buildAgent(model, synth, filter, sess, session.History, pendingQuestion)
				agent.SeedHistory(seedHistory...)
				return agent
			}
		},
		func(sess *session.State) routing.SpecialistBuilder {
			return func(pendingQuestion string, seedHistory []modelclient.Message) *tutoragent.Agent {
				agent := buildAgent(model, synth, filter, sess, session.English, pendingQuestion)
				agent.SeedHistory(seedHistory...)
				return agent
			}
		},
	)
	if err := w.Prewarm(ctx, noopVADLoader{}); err != nil {
		logger.Error(ctx, "prewarm failed", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "pipeline worker ready", "registered_name", cfg.Worker.PipelineName)
}

// noopVADLoader satisfies worker.VADLoader until the control service's own
// runtime supplies the real voice-activity-detection model (an external
// collaborator, §1); go.mod carries no VAD library of its own.
type noopVADLoader struct{}

func (noopVADLoader) Load(ctx context.Context) error { return nil }

func runEnglish(ctx context.Context, cfg *config.Config, tp transport.Client, db *store.Client, filter *safety.Filter, logger *telemetry.Logger) {
	model, err := modelclient.New(cfg.Model.Provider, providerConfig(cfg))
	if err != nil {
		logger.Error(ctx, "build model provider failed", "error", err)
		os.Exit(1)
	}
	synth := tutoragent.NewOpenAISynth(cfg.Model.OpenAI.APIKey, openai.TTSModel1)

	tr := transcript.New(tp, db, "realtime")
	w := worker.NewRealtime(tp, db, tr, filter,
		func(sess *session.State, pendingQuestion string) *tutoragent.Agent {
			return buildAgent(model, synth, filter, sess, session.English, pendingQuestion)
		},
		cfg.Worker.PipelineName,
	)
	w.ReplyDelay = cfg.Worker.RealtimeReplyDelay
	logger.Info(ctx, "realtime worker ready", "registered_name", cfg.Worker.RealtimeName)
}
