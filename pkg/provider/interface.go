// Package provider abstracts the reasoning model behind a narrow
// request/response contract: an instruction plus input text in, free text
// (usually JSON the caller parses) out. No retries happen at this level;
// callers fall back instead.
package provider

import "context"

/*
Request carries one prompt to the reasoning model.
*/
type Request struct {
	Instructions string
	Input        string
}

/*
Response carries the model's reply as free text.
*/
type Response struct {
	Text string
}

type Interface interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
