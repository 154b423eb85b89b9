package author

// VersionAuthor is the identity value object attached to every write. It is
// supplied by the external identity provider; the engine trusts it and only
// checks structural shape (a non-empty id).
type VersionAuthor struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Expertise string `json:"expertise"`
}

func (a VersionAuthor) IsValid() bool {
	return a.ID != ""
}
