package domain

import "time"

// IdempotencyStatus стадия обработки запроса с Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed: ответ 4xx сохранён и воспроизводится так же, как успешный.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s.terminal()
}

func (s IdempotencyStatus) terminal() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyRecord запись о запросе: хэш тела для сверки повторов и сохранённый ответ.
// После TTLAt запись считается отсутствующей, даже если ещё не удалена.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	HTTPStatus   int
	ResponseBody []byte
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal сообщает, что ответ сохранён и его можно воспроизвести.
func (r IdempotencyRecord) Terminal() bool {
	return r.Status.terminal()
}

// Expired истинно начиная с момента TTLAt; запись без TTL не истекает.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	if r.TTLAt.IsZero() {
		return false
	}
	return !now.Before(r.TTLAt)
}
