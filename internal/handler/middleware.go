package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// SessionCookieName 浏览器会话 cookie
const SessionCookieName = "roadmap_session"

const sessionIDKey = "sessionID"

// SessionMiddleware 读取会话 cookie，缺失或格式不对时签发新的会话 id
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookieName)
		if err != nil || !validSessionID(id) {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookieName, id, 0, "/", "", false, true)
			klog.V(6).Infof("签发新会话: sessionID=%s", id)
		}
		c.Set(sessionIDKey, id)
		c.Next()
	}
}

func validSessionID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
