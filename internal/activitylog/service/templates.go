package service

import (
	"fmt"
	"html"
	"strings"

	"catalogue/internal/activitylog/models"
)

// rendering holds the four denormalised descriptions stored on an entry.
type rendering struct {
	plainText    string
	html         string
	detailedText string
	detailedHTML string
}

type template func(lc models.LogContext) rendering

// templates has exactly one entry per event type. A miss is an unsupported
// event type.
var templates = map[models.EventType]template{
	models.EventDatasetVersionSubmitted:  action(datasetSubject, "submitted for review", nil),
	models.EventDatasetVersionApproved:   action(datasetSubject, "approved", comment("Admin comment")),
	models.EventDatasetVersionRejected:   action(datasetSubject, "rejected", comment("Reason for rejection")),
	models.EventDatasetVersionArchived:   action(datasetSubject, "archived", nil),
	models.EventDatasetVersionUnarchived: action(datasetSubject, "unarchived", nil),
	models.EventDatasetUpdatesSubmitted:  action(datasetSubject, "updated", diffs),

	models.EventApplicationSubmitted:              action(applicationSubject, "submitted", nil),
	models.EventApplicationApproved:               action(applicationSubject, "approved", comment("Custodian comment")),
	models.EventApplicationApprovedWithConditions: action(applicationSubject, "approved with conditions", comment("Conditions")),
	models.EventApplicationRejected:               action(applicationSubject, "rejected", comment("Reason for rejection")),
	models.EventApplicationWithdrawn:              action(applicationSubject, "withdrawn", nil),
	models.EventUpdatesRequested:                  action(applicationSubject, "returned with requested updates", comment("Requested updates")),
	models.EventUpdatesSubmitted:                  action(applicationSubject, "resubmitted with updates", diffs),
	models.EventAmendmentSubmitted:                action(applicationSubject, "amended", diffs),
	models.EventManualEvent:                       manual,
}

type subjectFunc func(lc models.LogContext) (plain, markup string)

type detailFunc func(lc models.LogContext) (plain, markup string)

func action(subject subjectFunc, verb string, detail detailFunc) template {
	return func(lc models.LogContext) rendering {
		plainSubject, htmlSubject := subject(lc)
		actor := actorName(lc)
		r := rendering{
			plainText: fmt.Sprintf("%s %s by %s", plainSubject, verb, actor),
			html:      fmt.Sprintf("%s %s by <b>%s</b>", htmlSubject, verb, html.EscapeString(actor)),
		}
		if detail != nil {
			r.detailedText, r.detailedHTML = detail(lc)
		}
		return r
	}
}

func datasetSubject(lc models.LogContext) (string, string) {
	title := lc.EntityTitle
	if title == "" {
		title = "dataset"
	}
	return fmt.Sprintf("Version %s of %s", lc.VersionLabel, title),
		fmt.Sprintf("Version <b>%s</b> of <b>%s</b>", html.EscapeString(lc.VersionLabel), html.EscapeString(title))
}

func applicationSubject(lc models.LogContext) (string, string) {
	if lc.EntityTitle == "" {
		return fmt.Sprintf("Application version %s", lc.VersionLabel),
			fmt.Sprintf("Application version <b>%s</b>", html.EscapeString(lc.VersionLabel))
	}
	return fmt.Sprintf("Version %s of application %s", lc.VersionLabel, lc.EntityTitle),
		fmt.Sprintf("Version <b>%s</b> of application <b>%s</b>", html.EscapeString(lc.VersionLabel), html.EscapeString(lc.EntityTitle))
}

func comment(label string) detailFunc {
	return func(lc models.LogContext) (string, string) {
		if lc.AdminComment == "" {
			return "", ""
		}
		return fmt.Sprintf("%s: %s", label, lc.AdminComment),
			fmt.Sprintf("<b>%s:</b> %s", html.EscapeString(label), html.EscapeString(lc.AdminComment))
	}
}

func diffs(lc models.LogContext) (string, string) {
	if len(lc.FieldDiffs) == 0 {
		return "", ""
	}
	var plain, markup strings.Builder
	markup.WriteString("<ul>")
	for i, d := range lc.FieldDiffs {
		if i > 0 {
			plain.WriteString("\n")
		}
		question := d.Question
		if d.Section != "" {
			question = d.Section + " / " + d.Question
		}
		fmt.Fprintf(&plain, "%s: %q changed to %q", question, d.Previous, d.Updated)
		fmt.Fprintf(&markup, "<li><b>%s:</b> <s>%s</s> %s</li>",
			html.EscapeString(question), html.EscapeString(d.Previous), html.EscapeString(d.Updated))
	}
	markup.WriteString("</ul>")
	return plain.String(), markup.String()
}

func manual(lc models.LogContext) rendering {
	actor := actorName(lc)
	return rendering{
		plainText:    lc.Description,
		html:         html.EscapeString(lc.Description),
		detailedText: fmt.Sprintf("Added by %s", actor),
		detailedHTML: fmt.Sprintf("Added by <b>%s</b>", html.EscapeString(actor)),
	}
}

func actorName(lc models.LogContext) string {
	if lc.Actor.Name != "" {
		return lc.Actor.Name
	}
	return lc.Actor.ID
}
