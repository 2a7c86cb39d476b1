package mock

import (
	"regexp"
	"strconv"

	"github.com/prasenjit/go-oasmock/internal/models"
	"github.com/prasenjit/go-oasmock/internal/schema"
)

var (
	statusPattern  = regexp.MustCompile(`^\d{3}$`)
	successPattern = regexp.MustCompile(`^2\d\d$`)
)

// declaredStatuses lists three-digit response keys in declaration order.
// "default" and ranges such as "2XX" are not selectable.
func declaredStatuses(responses *schema.Node) []string {
	var out []string
	for _, k := range responses.Keys() {
		if statusPattern.MatchString(k) {
			out = append(out, k)
		}
	}
	return out
}

// pickVariant chooses the status to mock: the planned status when declared,
// else the first declared 2xx, else the first declared status, else the
// configured default.
func (s *Service) pickVariant(op *models.ResolvedOperation, plan *models.Plan) (int, string) {
	declared := declaredStatuses(op.Responses)

	if plan.Status != 0 {
		want := strconv.Itoa(plan.Status)
		for _, k := range declared {
			if k == want {
				return plan.Status, plan.MediaType
			}
		}
	}

	for _, k := range declared {
		if successPattern.MatchString(k) {
			n, _ := strconv.Atoi(k)
			return n, plan.MediaType
		}
	}
	if len(declared) > 0 {
		n, _ := strconv.Atoi(declared[0])
		return n, plan.MediaType
	}
	return s.defaultStatus(), plan.MediaType
}

func (s *Service) defaultStatus() int {
	if s.config.DefaultStatus != 0 {
		return s.config.DefaultStatus
	}
	return 200
}

// responseFor returns the response object for status, falling back to
// "default". Response $refs are followed.
func (s *Service) responseFor(op *models.ResolvedOperation, status int) *schema.Node {
	res := op.Responses.Node(strconv.Itoa(status))
	if res == nil {
		res = op.Responses.Node("default")
	}
	return s.doc.Deref(res)
}

func (s *Service) firstMediaType(op *models.ResolvedOperation, status int) string {
	keys := s.responseFor(op, status).Node("content").Keys()
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// mediaObject picks the media type object for mediaType, then
// application/json, then the first declared one.
func (s *Service) mediaObject(response *schema.Node, mediaType string) *schema.Node {
	content := response.Node("content")
	if m := content.Node(mediaType); m != nil {
		return m
	}
	if m := content.Node("application/json"); m != nil {
		return m
	}
	if keys := content.Keys(); len(keys) > 0 {
		return content.Node(keys[0])
	}
	return nil
}

// mediaTypeExample returns the value of the first named example, following a
// $ref into components/examples, else the media type's singular example.
func (s *Service) mediaTypeExample(media *schema.Node) (any, bool) {
	if media == nil {
		return nil, false
	}
	if examples := media.Node("examples"); examples != nil {
		if keys := examples.Keys(); len(keys) > 0 {
			if named := s.doc.Deref(examples.Node(keys[0])); named != nil {
				if v, ok := named.Get("value"); ok {
					return v, true
				}
			}
		}
	}
	return media.Get("example")
}
