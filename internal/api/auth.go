package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const authRealm = "newswatch"

// BasicAuth 校验站点访问密码；public 中的路由（按注册路径匹配）免认证
func BasicAuth(user, pass string, public ...string) gin.HandlerFunc {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	challenge := `Basic realm="` + authRealm + `", charset="UTF-8"`

	return func(c *gin.Context) {
		if _, ok := open[c.FullPath()]; ok {
			c.Next()
			return
		}
		if !credentialsMatch(c.Request, user, pass) {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// credentialsMatch 用户名与密码都做常量时间比较，不因用户名错误提前返回
func credentialsMatch(r *http.Request, user, pass string) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user))
	passOK := subtle.ConstantTimeCompare([]byte(p), []byte(pass))
	return userOK&passOK == 1
}
