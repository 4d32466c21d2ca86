package github

// pullRequest is the subset of the PR endpoint response the pipeline needs.
type pullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Head   gitRef `json:"head"`
	Base   gitRef `json:"base"`
}

type gitRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// pullRequestFile is one entry from the PR files listing.
type pullRequestFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// contentsResponse is the repository contents endpoint response.
type contentsResponse struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type issueCommentRequest struct {
	Body string `json:"body"`
}

type commitStatusRequest struct {
	State       string `json:"state"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// errorResponse is GitHub's error body shape.
type errorResponse struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
		Message  string `json:"message"`
	} `json:"errors"`
}
