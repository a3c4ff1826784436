package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/listing-voice-go/internal/config"
	"github.com/chriscow/listing-voice-go/internal/logging"
	"github.com/chriscow/listing-voice-go/pkg/ai/stt"
	"github.com/chriscow/listing-voice-go/pkg/ai/tts"
	"github.com/chriscow/listing-voice-go/pkg/audio/wav"
	"github.com/chriscow/listing-voice-go/pkg/chat"
	"github.com/chriscow/listing-voice-go/pkg/listing"
	"github.com/chriscow/listing-voice-go/pkg/plugin"
	"github.com/chriscow/listing-voice-go/pkg/plugin/hosted"
	"github.com/chriscow/listing-voice-go/pkg/rtc"
	"github.com/chriscow/listing-voice-go/pkg/voice"
	"github.com/chriscow/listing-voice-go/pkg/voice/browser"
	"github.com/chriscow/listing-voice-go/pkg/voice/realtime"
)

// assistantRate is the PCM rate of assistant audio on the voice socket.
const assistantRate = 24000

// errNothingHeard ends a browser turn whose recognition produced no text.
var errNothingHeard = errors.New("no speech recognized")

var voiceTalkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Hold a voice conversation about a listing, one turn per mode",
	Long: `talk drives the voice controller with a WAV file as the microphone.
Each --mode entry is one turn; the controller switches modes between turns.
Realtime turns stream the file to the hosted realtime session; browser turns
recognize it with --stt, answer with the chat assistant and speak the reply
with --tts. Assistant audio is written to --out.

The input must be 16-bit PCM, 16 kHz mono.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("in")
		outDir, _ := cmd.Flags().GetString("out")
		modeNames, _ := cmd.Flags().GetStringSlice("mode")
		sttProvider, _ := cmd.Flags().GetString("stt")
		transcript, _ := cmd.Flags().GetString("transcript")
		ttsProvider, _ := cmd.Flags().GetString("tts")
		voiceID, _ := cmd.Flags().GetString("voice")
		propertiesFile, _ := cmd.Flags().GetString("properties")
		propertyID, _ := cmd.Flags().GetString("property")
		remote, _ := cmd.Flags().GetBool("remote")
		turn, _ := cmd.Flags().GetDuration("turn")

		modes, err := parseModes(modeNames)
		if err != nil {
			return err
		}
		p, err := pickProperty(propertiesFile, propertyID)
		if err != nil {
			return err
		}
		if voiceID == "" {
			voiceID = cfg.Voice.DefaultVoice
		}

		var mic rtc.Microphone
		if input != "" {
			mic = rtc.NewWAVMicrophone(input)
		}
		rec, err := newRecognizer(cfg, sttProvider, mic, transcript)
		if err != nil {
			return err
		}
		synth, err := newTTS(cfg, ttsProvider)
		if err != nil {
			return err
		}

		client := hosted.NewClient(cfg.FunctionsURL(), cfg.Functions.AnonKey, hosted.WithTimeout(cfg.Functions.Timeout))
		var resolver chat.Resolver = chat.NewKeywordResolver()
		path := "keyword"
		if remote {
			resolver = chat.Fallback(chat.NewHostedResponder(client), resolver)
			path = "hosted"
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runTalk(ctx, talkRig{
			Creator:    client,
			Microphone: mic,
			Recognizer: rec,
			TTS:        synth,
			Resolver:   resolver,
			Path:       path,
		}, talkOptions{
			Modes:    modes,
			Property: p,
			Voice:    voiceID,
			Provider: ttsProvider,
			OutDir:   outDir,
			Turn:     turn,
		})
	},
}

func parseModes(names []string) ([]voice.Mode, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one --mode is required")
	}
	modes := make([]voice.Mode, 0, len(names))
	for _, n := range names {
		m, err := voice.ParseMode(n)
		if err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, nil
}

// newRecognizer builds the named STT provider. mic is only handed over when
// there is one, so providers can report its absence.
func newRecognizer(cfg *config.Config, provider string, mic rtc.Microphone, transcript string) (stt.Recognizer, error) {
	opts := map[string]any{"transcript": transcript}
	if mic != nil {
		opts["microphone"] = mic
	}
	if provider == "openai" {
		opts["api_key"] = cfg.OpenAI.APIKey
	}
	return plugin.NewRecognizer(provider, opts)
}

// talkRig holds the capabilities runTalk wires into the controller.
type talkRig struct {
	Creator    realtime.SessionCreator
	Microphone rtc.Microphone
	Recognizer stt.Recognizer
	TTS        tts.TTS
	Resolver   chat.Resolver
	Path       string
}

type talkOptions struct {
	Modes    []voice.Mode
	Property listing.Property
	Voice    string
	Provider string
	OutDir   string
	Turn     time.Duration
}

type talkEvent struct {
	role voice.Role
	text string
	err  error
}

// assistantAudio collects socket audio until the turn ends.
type assistantAudio struct {
	mu  sync.Mutex
	pcm []byte
}

func (a *assistantAudio) write(data []byte) {
	a.mu.Lock()
	a.pcm = append(a.pcm, data...)
	a.mu.Unlock()
}

func (a *assistantAudio) take() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	pcm := a.pcm
	a.pcm = nil
	return pcm
}

func runTalk(ctx context.Context, rig talkRig, opts talkOptions) error {
	player, err := rtc.NewFilePlayer(opts.OutDir)
	if err != nil {
		return err
	}
	if opts.Turn <= 0 {
		opts.Turn = 30 * time.Second
	}

	events := make(chan talkEvent, 64)
	emit := func(ev talkEvent) {
		select {
		case events <- ev:
		default:
		}
	}
	callbacks := voice.Callbacks{
		OnTranscript: func(ev voice.TranscriptEvent) { emit(talkEvent{role: ev.Role, text: ev.Text}) },
		OnAIResponse: func(text string) { emit(talkEvent{role: voice.RoleAssistant, text: text}) },
		OnError:      func(err error) { emit(talkEvent{err: err}) },
	}

	var audio assistantAudio
	property := opts.Property
	rt, err := realtime.New(realtime.Config{
		Creator:   rig.Creator,
		Caps:      voice.Capabilities{Microphone: rig.Microphone},
		Property:  &property,
		Callbacks: callbacks,
		AudioSink: audio.write,
	})
	if err != nil {
		return err
	}
	br, err := browser.New(browser.Config{
		Caps:      voice.Capabilities{Microphone: rig.Microphone, Recognizer: rig.Recognizer, Player: player},
		TTS:       rig.TTS,
		Voice:     opts.Voice,
		Provider:  opts.Provider,
		Callbacks: callbacks,
	})
	if err != nil {
		return err
	}

	logger := logging.WithComponent("talk")
	ctrl, err := voice.NewController(rt, br, voice.WithInitialMode(opts.Modes[0]), voice.WithLogger(logger))
	if err != nil {
		return err
	}
	defer ctrl.Shutdown(context.Background())

	conv := chat.NewConversation(rig.Resolver, opts.Property, chat.WithPath(rig.Path))
	for _, mode := range opts.Modes {
		if err := ctrl.SwitchMode(ctx, mode); err != nil {
			return err
		}
		fmt.Printf("[%s]\n", mode)
		discard(events)

		turnCtx, cancel := context.WithTimeout(ctx, opts.Turn)
		if mode == voice.ModeRealtime {
			err = realtimeTurn(turnCtx, ctrl, events)
		} else {
			err = browserTurn(turnCtx, ctrl, conv, events)
		}
		cancel()

		if pcm := audio.take(); len(pcm) > 0 {
			speech := tts.Speech{Audio: wav.Encode(pcm, assistantRate, 1), Format: "wav", Voice: "realtime"}
			if perr := player.Play(ctx, speech); perr != nil {
				return perr
			}
		}
		if err != nil {
			return fmt.Errorf("%s turn: %w", mode, err)
		}
	}

	for _, f := range player.Files() {
		fmt.Println(f)
	}
	logger.Debug().Int("turns", len(opts.Modes)).Int("files", len(player.Files())).Msg("conversation finished")
	return nil
}

// discard drops events left over from the previous turn.
func discard(events <-chan talkEvent) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

func printEvent(ev talkEvent) {
	if ev.role == voice.RoleUser {
		fmt.Printf("You: %s\n", ev.text)
	} else {
		fmt.Printf("Assistant: %s\n", ev.text)
	}
}

// realtimeTurn streams the microphone until the assistant has answered and
// finished speaking.
func realtimeTurn(ctx context.Context, ctrl *voice.Controller, events <-chan talkEvent) error {
	if err := ctrl.StartListening(ctx); err != nil {
		return err
	}
	defer ctrl.StopListening()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	answered := false
	for {
		select {
		case ev := <-events:
			if ev.err != nil {
				return ev.err
			}
			printEvent(ev)
			if ev.role == voice.RoleAssistant {
				answered = true
			}
		case <-ticker.C:
			if answered && !ctrl.IsSpeaking() {
				return nil
			}
		case <-ctx.Done():
			if answered {
				return nil
			}
			return fmt.Errorf("no reply: %w", ctx.Err())
		}
	}
}

// browserTurn recognizes one utterance, answers it with the chat assistant
// and waits for the reply to be spoken.
func browserTurn(ctx context.Context, ctrl *voice.Controller, conv *chat.Conversation, events <-chan talkEvent) error {
	if err := ctrl.StartListening(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	heard := ""
	for heard == "" {
		select {
		case ev := <-events:
			if ev.err != nil {
				return ev.err
			}
			if ev.role == voice.RoleUser {
				heard = ev.text
			}
		case <-ticker.C:
			// The transcript is queued before listening ends.
			if !ctrl.IsListening() && len(events) == 0 {
				return errNothingHeard
			}
		case <-ctx.Done():
			ctrl.StopListening()
			return fmt.Errorf("nothing heard: %w", ctx.Err())
		}
	}
	printEvent(talkEvent{role: voice.RoleUser, text: heard})

	reply, ok := conv.SendMessage(ctx, heard)
	if !ok {
		return errNothingHeard
	}
	printEvent(talkEvent{role: voice.RoleAssistant, text: reply.Text})
	if err := ctrl.Speak(reply.Text); err != nil {
		return err
	}

	for ctrl.IsSpeaking() {
		select {
		case ev := <-events:
			if ev.err != nil {
				return ev.err
			}
		case <-ctx.Done():
			ctrl.StopSpeaking()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func init() {
	voiceTalkCmd.Flags().String("in", "", "16 kHz mono WAV file to use as the microphone")
	voiceTalkCmd.Flags().String("out", "talk", "Directory to write assistant audio to")
	voiceTalkCmd.Flags().StringSlice("mode", []string{"realtime"}, "Voice mode for each turn (realtime, browser), switching between turns")
	voiceTalkCmd.Flags().String("stt", "fake", "Speech recognizer for browser turns (fake, openai)")
	voiceTalkCmd.Flags().String("transcript", "", "What the fake recognizer hears")
	voiceTalkCmd.Flags().String("tts", "fake", "TTS provider for browser turns (fake, openai, hosted)")
	voiceTalkCmd.Flags().String("voice", "", "Voice id for browser turns (see 'voice voices')")
	voiceTalkCmd.Flags().String("properties", "", "JSON file of listings")
	voiceTalkCmd.Flags().String("property", "", "Listing id to talk about")
	voiceTalkCmd.Flags().Bool("remote", false, "Answer browser turns with the hosted chat function, falling back to keyword rules")
	voiceTalkCmd.Flags().Duration("turn", 30*time.Second, "Give up on a turn after this long")

	voiceCmd.AddCommand(voiceTalkCmd)
}
