// Package edgetts synthesizes narration through the Edge read-aloud websocket.
package edgetts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lecturecast/lecturecast/internal/speech"
)

// DefaultOutputFormat is mono 24 kHz MP3.
const DefaultOutputFormat = "audio-24khz-48kbitrate-mono-mp3"

const (
	dialAttempts = 3
	dialBackoff  = 500 * time.Millisecond
	// windows epoch offset used by the Sec-MS-GEC token
	winEpochSeconds = 11644473600
)

// Settings are the endpoint parameters of the service. They usually come
// from the EDGE_TTS_* environment variables.
type Settings struct {
	BaseURL            string
	Origin             string
	UserAgent          string
	TrustedClientToken string
	SecMSGecVersion    string
	OutputFormat       string
}

// SettingsFromEnv reads the EDGE_TTS_* variables.
func SettingsFromEnv() Settings {
	return Settings{
		BaseURL:            os.Getenv("EDGE_TTS_BASE_URL"),
		Origin:             os.Getenv("EDGE_TTS_ORIGIN"),
		UserAgent:          os.Getenv("EDGE_TTS_USER_AGENT"),
		TrustedClientToken: os.Getenv("EDGE_TTS_TRUSTED_CLIENT_TOKEN"),
		SecMSGecVersion:    os.Getenv("EDGE_TTS_SEC_MS_GEC_VERSION"),
	}
}

// Validate reports the first missing required field.
func (s Settings) Validate() error {
	switch {
	case s.BaseURL == "":
		return errors.New("EDGE_TTS_BASE_URL is required")
	case s.TrustedClientToken == "":
		return errors.New("EDGE_TTS_TRUSTED_CLIENT_TOKEN is required")
	case s.SecMSGecVersion == "":
		return errors.New("EDGE_TTS_SEC_MS_GEC_VERSION is required")
	}
	return nil
}

// Provider implements speech.Provider.
type Provider struct {
	settings Settings
	dialer   *websocket.Dialer
	logger   *slog.Logger
	now      func() time.Time
}

// NewProvider creates a provider. Settings are validated on each call so a
// misconfigured provider degrades into silent fallbacks instead of failing startup.
func NewProvider(settings Settings, logger *slog.Logger) *Provider {
	if settings.OutputFormat == "" {
		settings.OutputFormat = DefaultOutputFormat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		settings: settings,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		now:      time.Now,
	}
}

// Synthesize writes MP3 audio for text to outputPath.
func (p *Provider) Synthesize(ctx context.Context, text, voice string, ratePercent int, outputPath string) error {
	if voice == "" {
		return errors.New("voice ID is required")
	}
	if err := p.settings.Validate(); err != nil {
		return err
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := p.sendConfig(conn); err != nil {
		return err
	}

	requestID := strings.ReplaceAll(uuid.New().String(), "-", "")
	if err := p.sendSSML(conn, requestID, BuildSSML(voice, speech.FormatRate(ratePercent), text)); err != nil {
		return err
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	written, err := p.consumeResponses(ctx, conn, file)
	if err != nil {
		return err
	}
	if written == 0 {
		return errors.New("service returned no audio")
	}
	return nil
}

func (p *Provider) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if p.settings.Origin != "" {
		header.Set("Origin", p.settings.Origin)
	}
	if p.settings.UserAgent != "" {
		header.Set("User-Agent", p.settings.UserAgent)
	}
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")
	header.Set("Accept-Language", "en-US,en;q=0.9")
	header.Set("Cookie", "muid="+strings.ReplaceAll(uuid.New().String(), "-", ""))

	url := fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=%s",
		p.settings.BaseURL, p.settings.TrustedClientToken,
		secMSGec(p.settings.TrustedClientToken, p.now()), p.settings.SecMSGecVersion)

	var dialErr error
	for i := 0; i < dialAttempts; i++ {
		conn, resp, err := p.dialer.DialContext(ctx, url, header)
		if err == nil {
			return conn, nil
		}
		dialErr = err
		if resp != nil {
			p.logger.Warn("edge-tts handshake rejected", "status_code", resp.StatusCode, "attempt", i+1)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialBackoff):
		}
	}
	return nil, fmt.Errorf("websocket dial failed after %d attempts: %w", dialAttempts, dialErr)
}

// secMSGec derives the rolling access token: SHA-256 over the five-minute
// window in 100ns windows-epoch ticks concatenated with the client token.
func secMSGec(trustedClientToken string, now time.Time) string {
	ticks := now.Unix() + winEpochSeconds
	ticks -= ticks % 300
	str := fmt.Sprintf("%d0000000%s", ticks, trustedClientToken)
	sum := sha256.Sum256([]byte(str))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (p *Provider) sendConfig(conn *websocket.Conn) error {
	msg := "Content-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":"` +
		p.settings.OutputFormat + `"}}}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("send speech.config: %w", err)
	}
	return nil
}

func (p *Provider) sendSSML(conn *websocket.Conn, requestID, ssml string) error {
	msg := fmt.Sprintf("X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nPath:ssml\r\n\r\n%s", requestID, ssml)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("send ssml: %w", err)
	}
	return nil
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

// BuildSSML wraps text in a voice and prosody element.
func BuildSSML(voice, rate, text string) string {
	return fmt.Sprintf("<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>"+
		"<voice name='%s'><prosody pitch='+0Hz' rate='%s' volume='+0%%'>%s</prosody></voice></speak>",
		voice, rate, ssmlEscaper.Replace(text))
}

func (p *Provider) consumeResponses(ctx context.Context, conn *websocket.Conn, file *os.File) (int, error) {
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return written, fmt.Errorf("read message: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				return written, nil
			}
		case websocket.BinaryMessage:
			n, err := writeAudioFrame(data, file)
			if err != nil {
				return written, err
			}
			written += n
		}
	}
}

// writeAudioFrame strips the big-endian length-prefixed header from a binary
// frame and appends the payload to file.
func writeAudioFrame(data []byte, file *os.File) (int, error) {
	if len(data) < 2 {
		return 0, nil
	}
	headerLength := int(uint16(data[0])<<8 | uint16(data[1]))
	if len(data) < 2+headerLength {
		return 0, nil
	}
	audio := data[2+headerLength:]
	if len(audio) == 0 {
		return 0, nil
	}
	if _, err := file.Write(audio); err != nil {
		return 0, fmt.Errorf("write audio data: %w", err)
	}
	return len(audio), nil
}

// Voices lists a handful of neural narrator voices.
func (p *Provider) Voices(ctx context.Context) ([]speech.Voice, error) {
	return []speech.Voice{
		{ID: speech.DefaultVoice, Name: "Christopher", Language: "en-US"},
		{ID: "en-US-AriaNeural", Name: "Aria", Language: "en-US"},
		{ID: "en-GB-SoniaNeural", Name: "Sonia (UK)", Language: "en-GB"},
		{ID: "en-IN-NeerjaNeural", Name: "Neerja (India)", Language: "en-IN"},
		{ID: "fr-FR-VivienneNeural", Name: "Vivienne (France)", Language: "fr-FR"},
		{ID: "de-DE-SeraphinaNeural", Name: "Seraphina (Germany)", Language: "de-DE"},
	}, nil
}
