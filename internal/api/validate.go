package api

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// addressRe matches user addresses and voucher ids.
var addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40,}$`)

const addressTag = "ledgeraddr"

var (
	registerOnce sync.Once
	registerErr  error
)

// registerValidators adds the ledgeraddr tag to gin's validator. The result
// of the first call is returned on every call.
func registerValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("register %s: unexpected validator engine %T", addressTag, binding.Validator.Engine())
			return
		}
		if err := v.RegisterValidation(addressTag, func(fl validator.FieldLevel) bool {
			return addressRe.MatchString(fl.Field().String())
		}); err != nil {
			registerErr = fmt.Errorf("register %s: %w", addressTag, err)
		}
	})
	return registerErr
}

// bindMessage turns a binding error into the message shown to the client.
func bindMessage(err error, messages map[string]string) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		if m, ok := messages[verrs[0].Field()]; ok {
			return m
		}
		return "invalid " + verrs[0].Field()
	}
	return "invalid request body"
}
