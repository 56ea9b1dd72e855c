package oncall

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/bissquit/oncall-bridge/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// excerptSize is how many recent public messages are quoted in a description.
const excerptSize = 5

const (
	templateDescription     = "description"
	templateIncidentCreated = "incident_created"
	templateStatusChanged   = "status_changed"
)

// Renderer renders incident descriptions and conversation notes.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}

	for _, name := range []string{templateDescription, templateIncidentCreated, templateStatusChanged} {
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// DescriptionData contains data for the incident description.
type DescriptionData struct {
	ConversationID  int64
	ConversationURL string
	Customer        *domain.Contact
	Excerpt         []ExcerptLine
}

// ExcerptLine is one quoted message of the description.
type ExcerptLine struct {
	Speaker string
	Content string
}

// IncidentCreatedData contains data for the confirmation note.
type IncidentCreatedData struct {
	IncidentID  string
	Severity    string
	Status      string
	Team        string
	IncidentURL string
}

// StatusChangedData contains data for the status change note.
type StatusChangedData struct {
	From        string
	To          string
	IncidentURL string
}

// ConversationURL builds the agent dashboard link of a conversation.
func ConversationURL(chatBaseURL, accountID string, conversationID int64) string {
	return fmt.Sprintf("%s/app/accounts/%s/conversations/%d", chatBaseURL, accountID, conversationID)
}

// IncidentURL builds the dashboard link of an incident.
func IncidentURL(baseURL, projectID, incidentID string) string {
	return baseURL + "/dashboard/" + projectID + "/incidents/" + incidentID
}

// NewDescriptionData collects the link-back summary of a conversation.
func NewDescriptionData(chatBaseURL, accountID string, conv *domain.Conversation) DescriptionData {
	data := DescriptionData{
		ConversationID:  conv.ID,
		ConversationURL: ConversationURL(chatBaseURL, accountID, conv.ID),
		Excerpt:         recentExcerpt(conv.Messages, excerptSize),
	}

	if conv.Sender != nil {
		customer := *conv.Sender
		if customer.Name == "" {
			customer.Name = "Unknown"
		}
		data.Customer = &customer
	}

	return data
}

func recentExcerpt(messages []domain.Message, n int) []ExcerptLine {
	var lines []ExcerptLine
	for _, m := range messages {
		if m.Private || m.Content == "" {
			continue
		}
		speaker := "Agent"
		if m.FromCustomer() {
			speaker = "Customer"
		}
		lines = append(lines, ExcerptLine{Speaker: speaker, Content: m.Content})
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Description renders the markdown description of a new incident.
func (r *Renderer) Description(data DescriptionData) (string, error) {
	return r.render(templateDescription, data)
}

// IncidentCreated renders the confirmation note posted to the conversation.
func (r *Renderer) IncidentCreated(data IncidentCreatedData) (string, error) {
	return r.render(templateIncidentCreated, data)
}

// StatusChanged renders the note posted when an incident changes state.
func (r *Renderer) StatusChanged(data StatusChangedData) (string, error) {
	return r.render(templateStatusChanged, data)
}

func (r *Renderer) render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}
