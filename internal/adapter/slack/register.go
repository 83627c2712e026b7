package slack

import "github.com/Strob0t/LeaseForge/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(s notifier.Settings) (notifier.Notifier, error) {
		if err := s.Require("webhook_url"); err != nil {
			return nil, err
		}
		return NewNotifier(s["webhook_url"]), nil
	})
}
