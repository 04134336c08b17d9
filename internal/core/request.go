package core

import "github.com/gofiber/fiber/v2"

const maxPageSize = 1000

// Page holds the skip/limit pagination window for list endpoints.
type Page struct {
	Skip  int
	Limit int
}

// ParsePage reads skip/limit query params, defaulting to 0/100 and capping limit at 1000.
func ParsePage(c *fiber.Ctx) Page {
	skip := c.QueryInt("skip", 0)
	if skip < 0 {
		skip = 0
	}
	limit := c.QueryInt("limit", 100)
	if limit < 1 {
		limit = 100
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return Page{Skip: skip, Limit: limit}
}

// ActorID returns the identity recorded for mutating requests. There is no
// authentication layer; the client IP stands in for the actor.
func ActorID(c *fiber.Ctx) string {
	return c.IP()
}
