package model

// Profile is the public, per-user document stored in the "users" collection
// under the user's uid.
//
// The relationship fields are maintained by the follow graph: Following and
// Followers are sets (no duplicates) and the two counters cache their sizes.
// Readers display the counters, they never recompute them from the sets.
type Profile struct {
	UID            string    `json:"uid"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"displayName,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	PhotoURL       string    `json:"photoURL,omitempty"`
	CreatedAt      Timestamp `json:"createdAt"`
	Following      []string  `json:"following"`
	Followers      []string  `json:"followers"`
	FollowingCount int       `json:"followingCount"`
	FollowersCount int       `json:"followersCount"`
}

// ProfileUpdate carries the fields a user may change on their own profile.
// A nil field is left untouched.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

// IsFollowing reports whether uid is in p.Following.
func (p *Profile) IsFollowing(uid string) bool {
	for _, id := range p.Following {
		if id == uid {
			return true
		}
	}
	return false
}
