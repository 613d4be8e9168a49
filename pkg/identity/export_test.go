package identity

import "time"

func SetNow(t *Tokens, now func() time.Time) { t.now = now }
