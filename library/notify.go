package library

import (
	"fmt"
	"io"
)

// NotificationKind distinguishes confirmations from failures.
type NotificationKind int

const (
	NotifySuccess NotificationKind = iota
	NotifyFailure
)

func (k NotificationKind) String() string {
	if k == NotifyFailure {
		return "error"
	}
	return "ok"
}

// Notification is a short, dismissible message for the user.
type Notification struct {
	Kind    NotificationKind
	Title   string
	Message string
}

// Notifier surfaces notifications to whoever is driving the session.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// WriterNotifier prints notifications as single lines. Failures go to Err
// when it is set.
type WriterNotifier struct {
	Out io.Writer
	Err io.Writer
}

func (w WriterNotifier) Notify(n Notification) {
	dst := w.Out
	if n.Kind == NotifyFailure && w.Err != nil {
		dst = w.Err
	}
	if dst == nil {
		return
	}
	if n.Message == "" {
		fmt.Fprintf(dst, "[%s] %s\n", n.Kind, n.Title)
		return
	}
	fmt.Fprintf(dst, "[%s] %s: %s\n", n.Kind, n.Title, n.Message)
}

func notifyOK(n Notifier, title, msg string) {
	if n != nil {
		n.Notify(Notification{Kind: NotifySuccess, Title: title, Message: msg})
	}
}

func notifyErr(n Notifier, title string, err error) {
	if n != nil {
		n.Notify(Notification{Kind: NotifyFailure, Title: title, Message: err.Error()})
	}
}
