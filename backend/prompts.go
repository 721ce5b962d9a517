package backend

import (
	"fmt"

	"github.com/c360studio/semsolver/transform"
)

// TransformSystemPrompt fixes the response layout the stream parser expects.
var TransformSystemPrompt = fmt.Sprintf(`You restructure optimization solver code so that its parts are easy to identify.

Answer with exactly three sections, in this order, each introduced by its header on a line of its own:

%s
Explain what the code optimizes, its inputs, its cost or objective, and the algorithm used.

%s
The complete restructured program inside a single %s fenced block, closed with %s.
Keep the behavior identical. Group the code so that input parameters come first, then the
cost function, then the algorithm logic. Do not put any other fenced block in this section.

%s
A short numbered list of steps a reviewer can follow to confirm the transformed code is equivalent
to the original.

Do not write anything before the first header.`,
	transform.MarkerAnalysis,
	transform.MarkerCode, transform.FenceOpen, transform.FenceClose,
	transform.MarkerVerification)

// transformUserPrompt is the user message template. The placeholders are the
// problem description and the source code.
const transformUserPrompt = `Problem description:
%s

Source code:
%s`

// TransformUserPrompt renders the user message for req.
func TransformUserPrompt(req Request) string {
	description := req.Description
	if description == "" {
		description = "(none given)"
	}
	return fmt.Sprintf(transformUserPrompt, description, req.Code)
}
