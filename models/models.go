package models

// All returns every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Plan{},
		&StepRecord{},
		&ChallengeCompletion{},
		&WithdrawalRequest{},
	}
}
