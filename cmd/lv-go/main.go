package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chriscow/listing-voice-go/internal/config"
	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/chat"
	"github.com/chriscow/listing-voice-go/pkg/lead"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/plugin"
	_ "github.com/chriscow/listing-voice-go/pkg/plugin/fake"   // Import to register fake plugins
	"github.com/chriscow/listing-voice-go/pkg/plugin/hosted"   // Also registers the hosted TTS plugin
	_ "github.com/chriscow/listing-voice-go/pkg/plugin/openai" // Import to register OpenAI plugins
	"github.com/chriscow/listing-voice-go/pkg/rtc"
	"github.com/chriscow/listing-voice-go/pkg/version"
	"github.com/chriscow/listing-voice-go/pkg/voice"
	"github.com/chriscow/listing-voice-go/pkg/voice/browser"
)

var rootCmd = &cobra.Command{
	Use:   "lv-go",
	Short: "Listing Voice - chat and voice assistant for property listings",
	Long: `lv-go serves the hosted functions behind a property listing's chat and
voice assistant, and exercises the chat, lead scoring and speech pipeline
from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

		dir, _ := cmd.Flags().GetString("plugin-dir")
		return plugin.LoadDynamicPlugins(dir)
	},
}

// cfg is loaded once per invocation by rootCmd.PersistentPreRunE.
var cfg *config.Config

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the hosted functions and lead API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		propertiesFile, _ := cmd.Flags().GetString("properties")
		ttsProvider, _ := cmd.Flags().GetString("tts")

		if addr == "" {
			addr = ":" + cfg.App.Port
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runServe(ctx, cfg, serveOptions{
			Addr:           addr,
			PropertiesFile: propertiesFile,
			TTSProvider:    ttsProvider,
		})
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat assistant commands",
}

var chatAskCmd = &cobra.Command{
	Use:   "ask [message...]",
	Short: "Ask the chat assistant about a property, one message per argument",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		propertiesFile, _ := cmd.Flags().GetString("properties")
		propertyID, _ := cmd.Flags().GetString("property")
		remote, _ := cmd.Flags().GetBool("remote")
		provider, _ := cmd.Flags().GetString("llm")

		p, err := pickProperty(propertiesFile, propertyID)
		if err != nil {
			return err
		}

		var resolver chat.Resolver
		path := "keyword"
		switch {
		case remote:
			client := hosted.NewClient(cfg.FunctionsURL(), cfg.Functions.AnonKey, hosted.WithTimeout(cfg.Functions.Timeout))
			resolver = chat.NewHostedResponder(client)
			path = "hosted"
		case provider != "":
			model, err := plugin.NewLLM(provider, map[string]any{
				"api_key": cfg.OpenAI.APIKey,
				"model":   cfg.OpenAI.ChatModel,
			})
			if err != nil {
				return err
			}
			resolver = chat.Fallback(chat.NewLLMResolver(model), chat.NewKeywordResolver())
			path = "llm"
		default:
			resolver = chat.NewKeywordResolver()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return runChat(ctx, resolver, path, p, args)
	},
}

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Lead commands",
}

var leadScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a lead from its interaction signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		var s lead.Signals
		s.HasName, _ = cmd.Flags().GetBool("name")
		s.HasEmail, _ = cmd.Flags().GetBool("email")
		s.HasPhone, _ = cmd.Flags().GetBool("phone")
		s.TimeSpent, _ = cmd.Flags().GetDuration("time")
		s.MessageCount, _ = cmd.Flags().GetInt("messages")
		s.UsedVoice, _ = cmd.Flags().GetBool("voice")
		s.PagesViewed, _ = cmd.Flags().GetInt("pages")
		delta, _ := cmd.Flags().GetInt("delta")

		score := lead.ApplyDelta(lead.Score(s, lead.DefaultWeights), delta)
		fmt.Printf("Score: %d (%s)\n", score, lead.Temperature(score))
		return nil
	},
}

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Speech commands",
}

var voiceVoicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices available for speech",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, v := range tts.Catalog {
			marker := ""
			if v.ID == tts.DefaultVoice {
				marker = " (default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s%s\n", v.ID, v.Name, v.Description, marker)
		}
		w.Flush()
	},
}

var voiceSayCmd = &cobra.Command{
	Use:   "say [text...]",
	Short: "Speak each argument in order, writing the audio to files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("tts")
		voiceID, _ := cmd.Flags().GetString("voice")
		outDir, _ := cmd.Flags().GetString("out")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if voiceID == "" {
			voiceID = cfg.Voice.DefaultVoice
		}
		synth, err := newTTS(cfg, provider)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return runSay(ctx, synth, provider, voiceID, outDir, args)
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Provider plugin commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered provider plugins",
	Run: func(cmd *cobra.Command, args []string) {
		kind, _ := cmd.Flags().GetString("kind")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tNAME\tVERSION\tDESCRIPTION")
		for _, p := range plugin.List(kind) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Kind, p.Name, p.Version, p.Description)
		}
		w.Flush()
	},
}

// pickProperty loads propertyID from file, or the first property when no
// id is given. Without a file the assistant answers generically.
func pickProperty(path, propertyID string) (listing.Property, error) {
	if path == "" {
		return listing.Property{ID: propertyID}, nil
	}
	props, err := listing.LoadFile(path)
	if err != nil {
		return listing.Property{}, err
	}
	for _, p := range props {
		if propertyID == "" || p.ID == propertyID {
			return p, nil
		}
	}
	return listing.Property{}, fmt.Errorf("property %q not found in %s", propertyID, path)
}

func runChat(ctx context.Context, r chat.Resolver, path string, p listing.Property, messages []string) error {
	conv := chat.NewConversation(r, p, chat.WithPath(path))
	for _, m := range messages {
		reply, ok := conv.SendMessage(ctx, m)
		if !ok {
			continue
		}
		fmt.Printf("You: %s\nAssistant: %s\n\n", strings.TrimSpace(m), reply.Text)
	}

	score := conv.LeadScore()
	fmt.Printf("Lead score: %d (%s)\n", score, lead.Temperature(score))
	if conv.AppointmentRequested() {
		fmt.Println("The buyer asked for a showing.")
	}
	return nil
}

// newTTS builds the named provider with configuration from the environment.
func newTTS(cfg *config.Config, provider string) (tts.TTS, error) {
	opts := map[string]any{}
	switch provider {
	case "openai":
		opts["api_key"] = cfg.OpenAI.APIKey
		opts["model"] = cfg.OpenAI.TTSModel
	case "hosted":
		opts["base_url"] = cfg.FunctionsURL()
		opts["anon_key"] = cfg.Functions.AnonKey
	}
	return plugin.NewTTS(provider, opts)
}

func runSay(ctx context.Context, synth tts.TTS, provider, voiceID, outDir string, texts []string) error {
	player, err := rtc.NewFilePlayer(outDir)
	if err != nil {
		return err
	}

	errs := make(chan error, len(texts))
	b, err := browser.New(browser.Config{
		Caps:     voice.Capabilities{Player: player},
		TTS:      synth,
		Voice:    voiceID,
		Provider: provider,
		Callbacks: voice.Callbacks{
			OnError: func(err error) { errs <- err },
		},
	})
	if err != nil {
		return err
	}
	defer b.Shutdown(context.Background())

	for _, text := range texts {
		if err := b.Speak(text); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for b.Status().Speaking {
		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
			b.StopSpeaking()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	select {
	case err := <-errs:
		return err
	default:
	}
	if msg := b.Status().Err; msg != "" {
		return fmt.Errorf("speech failed: %s", msg)
	}
	for _, f := range player.Files() {
		fmt.Println(f)
	}
	log.Debug().Int("utterances", len(player.Files())).Msg("speech written")
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("plugin-dir", "", "Load .so provider plugins from this directory (plugindyn builds only)")

	serveCmd.Flags().String("addr", "", "Listen address (default :$APP_PORT)")
	serveCmd.Flags().String("properties", "", "JSON file of listings to serve")
	serveCmd.Flags().String("tts", "", "TTS provider for the text-to-speech function (default openai when OPENAI_API_KEY is set, else fake)")

	chatAskCmd.Flags().String("properties", "", "JSON file of listings")
	chatAskCmd.Flags().String("property", "", "Listing id to ask about")
	chatAskCmd.Flags().Bool("remote", false, "Ask the hosted chat function instead of answering locally")
	chatAskCmd.Flags().String("llm", "", "Answer with this LLM provider, falling back to keyword rules")

	leadScoreCmd.Flags().Bool("name", false, "Lead left a name")
	leadScoreCmd.Flags().Bool("email", false, "Lead left an email")
	leadScoreCmd.Flags().Bool("phone", false, "Lead left a phone number")
	leadScoreCmd.Flags().Duration("time", 0, "Time spent on the listing")
	leadScoreCmd.Flags().Int("messages", 0, "Chat messages sent")
	leadScoreCmd.Flags().Bool("voice", false, "Lead used voice chat")
	leadScoreCmd.Flags().Int("pages", 0, "Pages viewed")
	leadScoreCmd.Flags().Int("delta", 0, "Conversation score delta to apply")

	voiceSayCmd.Flags().String("tts", "fake", "TTS provider (fake, openai, hosted)")
	voiceSayCmd.Flags().String("voice", "", "Voice id (see 'voice voices')")
	voiceSayCmd.Flags().String("out", "speech", "Directory to write audio files to")
	voiceSayCmd.Flags().Duration("timeout", time.Minute, "Give up after this long")

	pluginListCmd.Flags().String("kind", "", "Only list plugins of this kind (stt, tts, llm)")

	chatCmd.AddCommand(chatAskCmd)
	leadCmd.AddCommand(leadScoreCmd)
	voiceCmd.AddCommand(voiceSayCmd, voiceVoicesCmd)
	pluginCmd.AddCommand(pluginListCmd)
	rootCmd.AddCommand(versionCmd, serveCmd, chatCmd, leadCmd, voiceCmd, pluginCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
