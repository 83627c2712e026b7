package email

import "github.com/Strob0t/LeaseForge/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(s notifier.Settings) (notifier.Notifier, error) {
		if err := s.Require("host", "from"); err != nil {
			return nil, err
		}
		port, err := s.Int("port", 587)
		if err != nil {
			return nil, err
		}
		return NewNotifier(SMTPConfig{
			Host:     s["host"],
			Port:     port,
			Username: s["username"],
			Password: s["password"],
			From:     s["from"],
		}), nil
	})
}
