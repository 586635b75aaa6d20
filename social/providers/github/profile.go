package github

import (
	"github.com/goliatone/go-authgate/social"
)

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

func mapProfile(user *githubUser) *social.Profile {
	if user == nil {
		return &social.Profile{Registration: Name, Attributes: map[string]any{}}
	}

	attributes := map[string]any{
		"id":         user.ID,
		"login":      user.Login,
		"name":       user.Name,
		"avatar_url": user.AvatarURL,
		"html_url":   user.HTMLURL,
	}
	if user.Email != "" {
		attributes["email"] = user.Email
	}

	return &social.Profile{
		Registration:   Name,
		ProviderUserID: fmtUserID(user.ID),
		Email:          user.Email,
		Name:           user.Name,
		Username:       user.Login,
		AvatarURL:      user.AvatarURL,
		Attributes:     attributes,
	}
}
