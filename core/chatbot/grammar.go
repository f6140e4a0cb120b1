package chatbot

import (
	"errors"
	"regexp"
	"strings"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/model"
)

var (
	// ErrNotCommand means the text is not an order command; the menu applies.
	ErrNotCommand = errors.New("not an order command")
	// ErrInvalidService is returned for an unknown service code.
	ErrInvalidService = errors.New("invalid service code")
	// ErrInvalidPhone is returned when the phone is not 10 to 15 digits.
	ErrInvalidPhone = errors.New("invalid phone number")
)

var commandRe = regexp.MustCompile(`^\*?(\d)\s+([\d\s]+)\*?$`)

// Service maps a one-digit code to a service type and its chat label.
type Service struct {
	Code  string            `json:"code"`
	Type  model.ServiceType `json:"type"`
	Label string            `json:"label"`
}

// DefaultServices are the codes offered in the menu.
var DefaultServices = []Service{
	{Code: "1", Type: model.ServiceFood, Label: "🍔 Makanan"},
	{Code: "2", Type: model.ServiceRide, Label: "🏍️ Ojek"},
}

// Command is a parsed order request.
type Command struct {
	Service Service
	Phone   string
}

// Parser turns chat text into commands.
type Parser struct {
	services    []Service
	countryCode string
}

// NewParser creates a Parser. Empty arguments select the defaults.
func NewParser(services []Service, countryCode string) *Parser {
	if len(services) == 0 {
		services = DefaultServices
	}
	if countryCode == "" {
		countryCode = "62"
	}
	return &Parser{services: services, countryCode: countryCode}
}

// Parse reads "<code> <phone>", optionally wrapped in asterisks.
func (p *Parser) Parse(text string) (Command, error) {
	m := commandRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Command{}, ErrNotCommand
	}
	svc, ok := p.service(m[1])
	if !ok {
		return Command{}, ErrInvalidService
	}
	phone, err := dispatch.NormalizePhone(m[2], p.countryCode)
	if err != nil {
		return Command{}, ErrInvalidPhone
	}
	return Command{Service: svc, Phone: phone}, nil
}

func (p *Parser) service(code string) (Service, bool) {
	for _, s := range p.services {
		if s.Code == code {
			return s, true
		}
	}
	return Service{}, false
}

// Label returns the chat label of a service type.
func (p *Parser) Label(t model.ServiceType) string {
	for _, s := range p.services {
		if s.Type == t {
			return s.Label
		}
	}
	return string(t)
}

// Services returns the configured services in menu order.
func (p *Parser) Services() []Service { return p.services }
