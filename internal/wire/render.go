package wire

import (
	"encoding/json"
	"strings"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// RenderEnvelope serializes an envelope back to wire text. It is the inverse
// of ParseEnvelope: parsing the output reproduces the original messages up
// to defaulted contentType, CR/LF stripping, and termination being cleared
// for non-assistant-commentary roles.
func RenderEnvelope(env *models.Envelope) (string, error) {
	var b strings.Builder
	for _, msg := range env.Messages {
		if err := renderFrame(&b, msg); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func renderFrame(b *strings.Builder, msg models.Message) error {
	b.WriteString(TokenStart)
	b.WriteString(string(msg.Role))
	if msg.Channel != models.ChannelAbsent {
		b.WriteString(TokenChannel)
		b.WriteString(string(msg.Channel))
		if msg.Recipient != "" {
			b.WriteString(" to=")
			b.WriteString(msg.Recipient)
		}
	}
	b.WriteString(TokenConstrain)
	b.WriteString(string(msg.ContentType))
	b.WriteString(TokenMessage)

	body, err := renderBody(msg)
	if err != nil {
		return err
	}
	b.WriteString(body)
	b.WriteString(terminatorToken(msg.Termination))
	return nil
}

func renderBody(msg models.Message) (string, error) {
	switch msg.ContentType {
	case models.ContentJSON, models.ContentHarmonyScript:
		raw, err := json.Marshal(msg.Content)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	default:
		if s, ok := msg.Content.(string); ok {
			return s, nil
		}
		raw, err := json.Marshal(msg.Content)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

func terminatorToken(t models.Termination) string {
	switch t {
	case models.TerminationCall:
		return TokenCall
	case models.TerminationReturn:
		return TokenReturn
	default:
		return TokenEnd
	}
}
