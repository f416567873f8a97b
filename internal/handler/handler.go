// Package handler exposes the console's JSON surface to the browser views.
package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ouldcheikh/labconsole/internal/i18n"
	"golang.org/x/text/language"
)

func requestLanguage(c *fiber.Ctx) language.Tag {
	return i18n.Match(c.Get(fiber.HeaderAcceptLanguage))
}
