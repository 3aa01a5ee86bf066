package utils

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

func GetActiveAccount(ctx *gin.Context) (TokenObject, error) {
	value, exists := ctx.Get("account")
	if !exists {
		return TokenObject{}, fmt.Errorf("error occurred, not authorized to access this resource")
	}

	account, ok := value.(TokenObject)
	if !ok {
		return TokenObject{}, fmt.Errorf("an error occurred")
	}

	return account, nil
}
