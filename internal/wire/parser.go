package wire

import (
	"encoding/json"
	"strings"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// ParseEnvelope scans text for back-to-back frames and returns the decoded
// envelope. Scanning restarts at the next TokenStart after each frame, so
// trailing garbage after the last terminator that precedes no further
// TokenStart is ignored.
func ParseEnvelope(text string) (*models.Envelope, error) {
	messages := make([]models.Message, 0, 4)
	pos := 0
	for {
		startIdx := strings.Index(text[pos:], TokenStart)
		if startIdx < 0 {
			break
		}
		startIdx += pos
		frameStart := startIdx + len(TokenStart)

		msg, next, err := parseFrame(text, frameStart)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
		pos = next
	}
	return &models.Envelope{Version: models.FormatVersion, Messages: messages}, nil
}

// parseFrame parses one frame beginning right after a consumed TokenStart and
// returns the decoded message plus the offset to resume scanning from.
func parseFrame(text string, from int) (models.Message, int, error) {
	msgIdx := strings.Index(text[from:], TokenMessage)
	if msgIdx < 0 {
		return models.Message{}, 0, models.NewError(models.KindParseMissingMessage, "frame missing <|message|> token")
	}
	msgIdx += from
	header := text[from:msgIdx]

	bodyStart := msgIdx + len(TokenMessage)
	termIdx, termTok := findEarliestTerminator(text, bodyStart)
	if termIdx < 0 {
		return models.Message{}, 0, models.NewError(models.KindParseMissingTerm, "frame missing a terminator token")
	}

	body := strings.Trim(text[bodyStart:termIdx], "\r\n")

	role, channel, recipient, contentType, err := parseHeader(header)
	if err != nil {
		return models.Message{}, 0, err
	}
	if role == "" {
		return models.Message{}, 0, models.NewError(models.KindParseEmptyRole, "frame has an empty role")
	}

	termination := terminatorToTermination(termTok)

	if channel == "" && models.Role(role) == models.RoleAssistant {
		channel = string(DefaultAssistantChannel(termination))
	}

	if contentType == "" {
		contentType = InferContentType(models.Role(role), models.Channel(channel), termination, body)
	}

	if models.Role(role) != models.RoleAssistant || models.Channel(channel) != models.ChannelCommentary {
		termination = models.TerminationAbsent
	}

	var content any
	switch models.ContentType(contentType) {
	case models.ContentJSON, models.ContentHarmonyScript:
		if err := json.Unmarshal([]byte(body), &content); err != nil {
			return models.Message{}, 0, models.NewError(models.KindParseInvalidJSON, "frame body is not valid JSON: "+err.Error())
		}
	default:
		content = body
		contentType = string(models.ContentText)
	}

	msg := models.Message{
		Role:        models.Role(role),
		Channel:     models.Channel(channel),
		Recipient:   recipient,
		ContentType: models.ContentType(contentType),
		Termination: termination,
		Content:     content,
	}
	return msg, termIdx + len(termTok), nil
}

func findEarliestTerminator(text string, from int) (int, string) {
	best := -1
	bestTok := ""
	for _, tok := range terminators {
		idx := strings.Index(text[from:], tok)
		if idx < 0 {
			continue
		}
		idx += from
		if best == -1 || idx < best {
			best = idx
			bestTok = tok
		}
	}
	return best, bestTok
}

func terminatorToTermination(tok string) models.Termination {
	switch tok {
	case TokenCall:
		return models.TerminationCall
	case TokenReturn:
		return models.TerminationReturn
	case TokenEnd:
		return models.TerminationEnd
	default:
		return models.TerminationAbsent
	}
}

// parseHeader splits "role [ <|channel|> name [ to=recipient ] ] [ <|constrain|> contentType ]"
func parseHeader(header string) (role, channel, recipient, contentType string, err error) {
	chanIdx := strings.Index(header, TokenChannel)
	constrainIdx := strings.Index(header, TokenConstrain)

	roleEnd := len(header)
	if chanIdx >= 0 && chanIdx < roleEnd {
		roleEnd = chanIdx
	}
	if constrainIdx >= 0 && constrainIdx < roleEnd {
		roleEnd = constrainIdx
	}
	role = strings.TrimSpace(header[:roleEnd])

	if chanIdx >= 0 {
		segEnd := len(header)
		if constrainIdx >= 0 && constrainIdx > chanIdx {
			segEnd = constrainIdx
		}
		seg := strings.TrimSpace(header[chanIdx+len(TokenChannel) : segEnd])
		fields := strings.Fields(seg)
		if len(fields) > 0 {
			channel = fields[0]
		}
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "to=") {
				recipient = strings.TrimPrefix(f, "to=")
			}
		}
	}

	if constrainIdx >= 0 {
		contentType = strings.TrimSpace(header[constrainIdx+len(TokenConstrain):])
	}

	return role, channel, recipient, contentType, nil
}

// DefaultAssistantChannel picks the implied channel for an assistant message
// with no explicit <|channel|>: commentary when the termination marks a tool
// call/return, final otherwise.
func DefaultAssistantChannel(termination models.Termination) models.Channel {
	if termination == models.TerminationCall || termination == models.TerminationReturn {
		return models.ChannelCommentary
	}
	return models.ChannelFinal
}

// InferContentType applies the defaulting rules when <|constrain|> is absent.
func InferContentType(role models.Role, channel models.Channel, termination models.Termination, body string) string {
	if role != models.RoleAssistant || channel != models.ChannelCommentary {
		return string(models.ContentText)
	}
	if termination == models.TerminationCall || termination == models.TerminationReturn {
		return string(models.ContentJSON)
	}
	// assistant + commentary + end: inspect body shape.
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return string(models.ContentText)
	}
	if strings.Contains(trimmed, `"steps"`) {
		return string(models.ContentHarmonyScript)
	}
	return string(models.ContentJSON)
}
