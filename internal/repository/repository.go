package repository

import (
	"campreg/internal/database"
)

type Repositories struct {
	Retries       *RetryRepository
	Registrations *RegistrationRepository
	Users         *UserRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Retries:       NewRetryRepository(db),
		Registrations: NewRegistrationRepository(db),
		Users:         NewUserRepository(db),
	}
}
