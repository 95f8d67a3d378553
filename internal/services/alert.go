package services

import (
	"context"
	"log/slog"
)

type AlertMailer interface {
	IsConfigured() bool
	SendAlert(to, component, detail string) error
}

// Alerter is the exception channel for background work: every report is
// logged, and the ones flagged alertAdmin are also mailed to the
// administrator when mail is set up.
type Alerter struct {
	component string
	adminTo   string
	mailer    AlertMailer
	log       *slog.Logger
}

func NewAlerter(component, adminTo string, mailer AlertMailer, logger *slog.Logger) *Alerter {
	return &Alerter{
		component: component,
		adminTo:   adminTo,
		mailer:    mailer,
		log:       logger.With("component", component),
	}
}

func (a *Alerter) Report(ctx context.Context, err error, alertAdmin bool) {
	if err == nil {
		return
	}

	if !alertAdmin {
		a.log.WarnContext(ctx, "reported error", "error", err)
		return
	}
	a.log.ErrorContext(ctx, "reported error", "error", err, "alert_admin", true)

	if a.adminTo == "" || a.mailer == nil || !a.mailer.IsConfigured() {
		return
	}
	if mailErr := a.mailer.SendAlert(a.adminTo, a.component, err.Error()); mailErr != nil {
		a.log.ErrorContext(ctx, "failed to mail alert", "error", mailErr)
	}
}
