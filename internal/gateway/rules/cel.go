package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
)

// CEL-compiled rules let operators express predicates as configuration
// strings instead of Go code, e.g.
//
//	resource.data.owner == request.client.id
//
// The expression sees two variables: request (client, ref, data) and
// resource (the data the command would return).

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func ruleEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Declarations(
				decls.NewVar("request", decls.Dyn),
				decls.NewVar("resource", decls.Dyn),
			),
		)
	})
	return celEnv, celEnvErr
}

// CompileCEL compiles a CEL boolean expression into a Rule.
func CompileCEL(expression string) (Rule, error) {
	env, err := ruleEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create cel environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compilation error: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel program: %w", err)
	}

	return &celRule{program: program}, nil
}

// MustCompileCEL is CompileCEL for statically known expressions.
func MustCompileCEL(expression string) Rule {
	rule, err := CompileCEL(expression)
	if err != nil {
		panic(err)
	}
	return rule
}

type celRule struct {
	program cel.Program
}

func (r *celRule) Evaluate(ctx context.Context, req *Request, res *Response) (bool, error) {
	out, _, err := r.program.ContextEval(ctx, map[string]interface{}{
		"request":  requestVars(req),
		"resource": responseVars(res),
	})
	if err != nil {
		return false, fmt.Errorf("cel evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel expression did not return a boolean")
	}
	return result, nil
}

func requestVars(req *Request) map[string]interface{} {
	if req == nil {
		return nil
	}

	vars := map[string]interface{}{}
	if req.Client != nil {
		vars["client"] = map[string]interface{}{
			"id":     req.Client.ID,
			"admin":  req.Client.Admin,
			"claims": req.Client.Claims,
		}
	}
	if req.Ref != nil {
		vars["ref"] = req.Ref.Path()
	}
	if req.Data != nil {
		vars["data"] = req.Data
	}
	return vars
}

func responseVars(res *Response) map[string]interface{} {
	if res == nil {
		return nil
	}
	return map[string]interface{}{"data": res.Data}
}
