package domain

// Issue is an issue fetched from the hosting service. Issues are fetched
// lazily per resolved reference and are not cached across runs.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}
