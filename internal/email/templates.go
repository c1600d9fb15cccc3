package email

import (
	"fmt"
	"strings"
	"time"
)

type Message struct {
	Subject string
	Body    string
}

type NotificationDetails struct {
	AppName string
	BaseURL string
	Title   string
	Body    string
	Link    string
}

type ReminderDetails struct {
	AppName  string
	BaseURL  string
	Kind     string
	TeamName string
	Title    string
	StartsAt time.Time
	Location string
	Link     string
}

func FormatDateTime(t time.Time) string {
	return t.Format("Monday, Jan 2, 2006 at 3:04 PM MST")
}

// BuildNotificationEmail mirrors an in-app notification.
func BuildNotificationEmail(details NotificationDetails) Message {
	appName := strings.TrimSpace(details.AppName)
	if appName == "" {
		appName = "Grudge"
	}

	lines := []string{strings.TrimSpace(details.Body)}
	if url := absoluteLink(details.BaseURL, details.Link); url != "" {
		lines = append(lines, "", fmt.Sprintf("Open: %s", url))
	}

	return Message{
		Subject: fmt.Sprintf("[%s] %s", appName, strings.TrimSpace(details.Title)),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildReminderEmail(details ReminderDetails) Message {
	appName := strings.TrimSpace(details.AppName)
	if appName == "" {
		appName = "Grudge"
	}
	kind := strings.TrimSpace(details.Kind)
	if kind == "" {
		kind = "Event"
	}
	location := strings.TrimSpace(details.Location)
	if location == "" {
		location = "TBD"
	}

	lines := []string{
		fmt.Sprintf("Reminder: %s is coming up.", details.Title),
		"",
		fmt.Sprintf("Team: %s", details.TeamName),
		fmt.Sprintf("When: %s", FormatDateTime(details.StartsAt)),
		fmt.Sprintf("Where: %s", location),
	}
	if url := absoluteLink(details.BaseURL, details.Link); url != "" {
		lines = append(lines, "", fmt.Sprintf("Details: %s", url))
	}

	return Message{
		Subject: fmt.Sprintf("[%s] Upcoming %s: %s", appName, strings.ToLower(kind), details.Title),
		Body:    strings.Join(lines, "\n"),
	}
}

func absoluteLink(baseURL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return link
	}
	return base + "/" + strings.TrimLeft(link, "/")
}
