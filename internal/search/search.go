package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	User    string `json:"user"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterUser string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// PostRecord is the data we index for a blog post.
type PostRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	User  string `json:"user"`
	Link  string `json:"link"`
	Text  string `json:"text"`
}
