package users

// SeedAccount describes one account to preload into the directory.
type SeedAccount struct {
	ID        string `yaml:"id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
	Role      string `yaml:"role"`
	APIKey    string `yaml:"apiKey"`
}

// NewSeededService creates an in-memory directory preloaded with the
// given accounts.
func NewSeededService(accounts []SeedAccount) (*InMemoryService, error) {
	s := NewInMemoryService()

	for _, a := range accounts {
		err := s.Add(User{
			ID:        a.ID,
			Username:  a.Username,
			FirstName: a.FirstName,
			LastName:  a.LastName,
			Role:      a.Role,
			APIKey:    a.APIKey,
		}, a.Password)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}
