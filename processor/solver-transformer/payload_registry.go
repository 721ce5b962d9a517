package solvertransformer

import "github.com/c360studio/semstreams/component"

func init() {
	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "solver",
		Category:    "transform-request",
		Version:     "v1",
		Description: "Solver source and problem description to restructure",
		Factory:     func() any { return &TransformRequest{} },
	}); err != nil {
		panic("failed to register TransformRequest: " + err.Error())
	}

	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "solver",
		Category:    "transform-result",
		Version:     "v1",
		Description: "Parsed transform sections with the stored descriptor id or missing fields",
		Factory:     func() any { return &TransformResult{} },
	}); err != nil {
		panic("failed to register TransformResult: " + err.Error())
	}
}
