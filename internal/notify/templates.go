package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"busticket/internal/models"
)

type Kind string

const (
	KindBookingConfirmed Kind = "booking_confirmed"
	KindBookingCancelled Kind = "booking_cancelled"
	KindJourneyReminder  Kind = "journey_reminder"
)

// Notification is one rendered message, ready for every channel.
type Notification struct {
	Kind    Kind
	Ticket  models.TicketInfo
	Subject string
	HTML    string
	Text    string
}

type templateData struct {
	T           models.TicketInfo
	Departure   string
	Fare        string
	Refund      string
	HoursBefore int
}

const departureLayout = "02 Jan 2006 15:04 MST"

var emailTemplates = map[Kind]*htmltemplate.Template{
	KindBookingConfirmed: htmltemplate.Must(htmltemplate.New("confirmed").Parse(`<p>Dear {{.T.PassengerName}},</p>
<p>Your seat <b>{{.T.SeatNumber}}</b> on {{.T.RouteName}} ({{.T.Origin}} to {{.T.Destination}}) is booked.</p>
<ul>
<li>Ticket: {{.T.TicketNumber}}</li>
<li>Bus: {{.T.BusNumber}}</li>
<li>Departure: {{.Departure}}</li>
<li>Boarding at: {{.T.BoardingPoint}}</li>
<li>Dropping at: {{.T.DroppingPoint}}</li>
<li>Fare: {{.Fare}}</li>
</ul>`)),
	KindBookingCancelled: htmltemplate.Must(htmltemplate.New("cancelled").Parse(`<p>Dear {{.T.PassengerName}},</p>
<p>Ticket <b>{{.T.TicketNumber}}</b> for {{.T.RouteName}} on {{.Departure}} has been cancelled.</p>
<p>Refund due: {{.Refund}}</p>`)),
	KindJourneyReminder: htmltemplate.Must(htmltemplate.New("reminder").Parse(`<p>Dear {{.T.PassengerName}},</p>
<p>Your bus {{.T.BusNumber}} ({{.T.RouteName}}) departs in {{.HoursBefore}} hour(s), at {{.Departure}}.</p>
<p>Seat {{.T.SeatNumber}}, boarding at {{.T.BoardingPoint}}. Ticket {{.T.TicketNumber}}.</p>`)),
}

var smsTemplates = map[Kind]*texttemplate.Template{
	KindBookingConfirmed: texttemplate.Must(texttemplate.New("confirmed").Parse(
		`Booked: {{.T.TicketNumber}} seat {{.T.SeatNumber}} {{.T.Origin}}-{{.T.Destination}} {{.Departure}}. Board at {{.T.BoardingPoint}}.`)),
	KindBookingCancelled: texttemplate.Must(texttemplate.New("cancelled").Parse(
		`Cancelled: {{.T.TicketNumber}}. Refund due {{.Refund}}.`)),
	KindJourneyReminder: texttemplate.Must(texttemplate.New("reminder").Parse(
		`Reminder: bus {{.T.BusNumber}} departs in {{.HoursBefore}}h ({{.Departure}}). Seat {{.T.SeatNumber}}, ticket {{.T.TicketNumber}}.`)),
}

func subjectFor(kind Kind, info models.TicketInfo, hours int) string {
	switch kind {
	case KindBookingConfirmed:
		return fmt.Sprintf("Booking confirmed - %s", info.TicketNumber)
	case KindBookingCancelled:
		return fmt.Sprintf("Booking cancelled - %s", info.TicketNumber)
	case KindJourneyReminder:
		return fmt.Sprintf("Your journey starts in %d hour(s) - %s", hours, info.TicketNumber)
	default:
		return info.TicketNumber
	}
}

// Render builds the subject and both bodies for kind.
func Render(kind Kind, info models.TicketInfo, refund models.Money, hours int) (Notification, error) {
	data := templateData{
		T:           info,
		Departure:   info.JourneyDateTime.UTC().Format(departureLayout),
		Fare:        info.Fare.String(),
		Refund:      refund.String(),
		HoursBefore: hours,
	}

	html, ok := emailTemplates[kind]
	if !ok {
		return Notification{}, fmt.Errorf("no template for notification %s", kind)
	}

	var htmlBody, textBody bytes.Buffer
	if err := html.Execute(&htmlBody, data); err != nil {
		return Notification{}, fmt.Errorf("failed to render email template: %w", err)
	}
	if err := smsTemplates[kind].Execute(&textBody, data); err != nil {
		return Notification{}, fmt.Errorf("failed to render sms template: %w", err)
	}

	return Notification{
		Kind:    kind,
		Ticket:  info,
		Subject: subjectFor(kind, info, hours),
		HTML:    htmlBody.String(),
		Text:    textBody.String(),
	}, nil
}
