package main

import (
	"crewcomms/src/boot"
	"crewcomms/src/config"
	"crewcomms/src/types"
	"crewcomms/src/utils"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
)

const origin = "http://localhost:3000"

type TestSuite struct {
	suite.Suite
	Container *boot.Container
	Router    *gin.Engine
	Tokens    map[string]string
}

func (s *TestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("API_ENV", "test")

	conf, err := config.Load()
	if err != nil {
		log.Fatalf("could not load config: %s", err.Error())
	}
	logger, _ := test.NewNullLogger()
	s.Container = boot.NewLocalContainer(conf, logger)
	s.Router = newRouter(s.Container)

	s.Tokens = map[string]string{}
	for _, uid := range []string{"owner", "apprentice", "outsider"} {
		token, err := utils.GenerateJWT(uid, uid+"@example.com", uid)
		if err != nil {
			log.Fatalf("Error generating JWT token: %s\n", err.Error())
		}
		s.Tokens[uid] = token
	}
}

func (s *TestSuite) do(method, path, uid string, body any) (int, string) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().Nil(err)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, path, reader)
	s.Require().Nil(err)
	req.Header.Set("origin", origin)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.Tokens[uid]))
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

// newCrew creates a public crew owned by "owner" and joins "apprentice" to it.
func (s *TestSuite) newCrew(prefs map[string]any) string {
	code, res := s.do("POST", "/api/v1/crews", "owner", map[string]any{
		"name":        "Line Crew 7",
		"visibility":  types.VISIBILITY_PUBLIC,
		"preferences": prefs,
	})
	s.Require().Equal(http.StatusCreated, code, res)
	crewID := gjson.Get(res, "data.id").String()
	s.Require().NotEmpty(crewID)

	code, res = s.do("POST", "/api/v1/crews/"+crewID+"/join", "apprentice", nil)
	s.Require().Equal(http.StatusOK, code, res)
	assert.Equal(s.T(), string(types.ROLE_APPRENTICE), gjson.Get(res, "data.role").String())
	return crewID
}

func (s *TestSuite) TestPingRoute() {
	code, _ := s.do("GET", "/", "", nil)
	assert.Equal(s.T(), 200, code)
}

func (s *TestSuite) TestMaintenanceMode() {
	conf := *s.Container.Config
	conf.MaintenanceMode = true

	router := setupRouter()
	router = maintenanceModeMiddleware(router, &conf)
	apiv1Group(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 503, w.Code)
	assert.True(s.T(), gjson.Get(w.Body.String(), "retryable").Bool())
}

func (s *TestSuite) TestAuthRequired() {
	code, res := s.do("GET", "/api/v1/crews/anything", "", nil)
	assert.Equal(s.T(), http.StatusUnauthorized, code)
	assert.Equal(s.T(), string(types.KIND_UNAUTHENTICATED), gjson.Get(res, "kind").String())

	req, _ := http.NewRequest("GET", "/api/v1/crews/anything", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

func (s *TestSuite) TestValidation() {
	s.Run("Should reject a crew without a name", func() {
		code, res := s.do("POST", "/api/v1/crews", "owner", map[string]any{"description": "no name"})
		assert.Equal(s.T(), http.StatusBadRequest, code)
		assert.Equal(s.T(), string(types.KIND_VALIDATION_FAILED), gjson.Get(res, "kind").String())
		assert.False(s.T(), gjson.Get(res, "retryable").Bool())
		assert.NotEmpty(s.T(), gjson.Get(res, "error").String())
	})

	s.Run("Should reject an unknown role", func() {
		crewID := s.newCrew(nil)
		code, res := s.do("PUT", "/api/v1/crews/"+crewID+"/members/apprentice/role", "owner", map[string]any{"role": "wizard"})
		assert.Equal(s.T(), http.StatusBadRequest, code)
		assert.Equal(s.T(), string(types.KIND_VALIDATION_FAILED), gjson.Get(res, "kind").String())
	})
}

func (s *TestSuite) TestRoleChange() {
	crewID := s.newCrew(nil)
	base := "/api/v1/crews/" + crewID

	s.Run("Should deny apprentices managing members", func() {
		code, res := s.do("PUT", base+"/members/owner/role", "apprentice", map[string]any{"role": types.ROLE_APPRENTICE})
		assert.Equal(s.T(), http.StatusForbidden, code)
		assert.Equal(s.T(), string(types.KIND_PERMISSION_DENIED), gjson.Get(res, "kind").String())
	})

	s.Run("Should promote the apprentice and notify them", func() {
		code, res := s.do("PUT", base+"/members/apprentice/role", "owner", map[string]any{"role": types.ROLE_JOURNEYMAN})
		s.Require().Equal(http.StatusOK, code, res)
		assert.Equal(s.T(), string(types.ROLE_JOURNEYMAN), gjson.Get(res, "data.role").String())

		code, res = s.do("GET", base+"/members/apprentice/permissions", "apprentice", nil)
		s.Require().Equal(http.StatusOK, code, res)
		assert.Equal(s.T(), string(types.ROLE_JOURNEYMAN), gjson.Get(res, "role").String())
		var perms []string
		for _, p := range gjson.Get(res, "permissions").Array() {
			perms = append(perms, p.String())
		}
		assert.Contains(s.T(), perms, string(types.PERM_SHARE_JOBS))
		assert.Contains(s.T(), perms, string(types.PERM_INVITE_MEMBERS))
		assert.NotContains(s.T(), perms, string(types.PERM_MANAGE_MEMBERS))

		code, res = s.do("GET", base+"/notifications", "apprentice", nil)
		s.Require().Equal(http.StatusOK, code, res)
		found := false
		for _, n := range gjson.Get(res, "data").Array() {
			if n.Get("type").String() == string(types.EVENT_ROLE_CHANGED) {
				found = true
				assert.False(s.T(), n.Get("isRead").Bool())
			}
		}
		assert.True(s.T(), found, "role change notification missing")

		code, res = s.do("GET", base+"/notifications/unread", "apprentice", nil)
		s.Require().Equal(http.StatusOK, code, res)
		assert.GreaterOrEqual(s.T(), gjson.Get(res, "count").Int(), int64(1))
	})

	s.Run("Should keep outsiders out of the member list", func() {
		code, _ := s.do("GET", base+"/members/apprentice/permissions", "outsider", nil)
		assert.Equal(s.T(), http.StatusForbidden, code)
	})
}

func (s *TestSuite) TestPermissionOverrides() {
	crewID := s.newCrew(nil)
	base := "/api/v1/crews/" + crewID + "/members/apprentice/permissions"

	s.Run("Should reject unknown permissions", func() {
		code, res := s.do("PUT", base, "owner", map[string]any{"grant": []string{"flyDrones"}})
		assert.Equal(s.T(), http.StatusBadRequest, code)
		assert.Equal(s.T(), string(types.KIND_VALIDATION_FAILED), gjson.Get(res, "kind").String())
	})

	s.Run("Should deny members without manageMembers", func() {
		code, _ := s.do("PUT", base, "apprentice", map[string]any{"grant": []string{string(types.PERM_SHARE_JOBS)}})
		assert.Equal(s.T(), http.StatusForbidden, code)
	})

	s.Run("Should apply grants and revokes to the member", func() {
		code, res := s.do("PUT", base, "owner", map[string]any{
			"grant":  []string{string(types.PERM_SHARE_JOBS)},
			"revoke": []string{string(types.PERM_SEND_MESSAGES)},
		})
		s.Require().Equal(http.StatusOK, code, res)

		code, res = s.do("GET", base, "apprentice", nil)
		s.Require().Equal(http.StatusOK, code, res)
		var perms []string
		for _, p := range gjson.Get(res, "permissions").Array() {
			perms = append(perms, p.String())
		}
		assert.Contains(s.T(), perms, string(types.PERM_SHARE_JOBS))
		assert.NotContains(s.T(), perms, string(types.PERM_SEND_MESSAGES))

		code, _ = s.do("POST", "/api/v1/conversations/crew_"+crewID+"/messages", "apprentice", map[string]any{"content": "can I still talk?"})
		assert.Equal(s.T(), http.StatusForbidden, code)
	})
}

func (s *TestSuite) TestMessageHistory() {
	crewID := s.newCrew(nil)
	path := "/api/v1/conversations/crew_" + crewID + "/messages"

	contents := []string{"first", "second", "third"}
	for i, content := range contents {
		uid := "owner"
		if i%2 == 1 {
			uid = "apprentice"
		}
		code, res := s.do("POST", path, uid, map[string]any{"content": content})
		s.Require().Equal(http.StatusCreated, code, res)
	}

	code, res := s.do("GET", path, "apprentice", nil)
	s.Require().Equal(http.StatusOK, code, res)
	msgs := gjson.Get(res, "data").Array()
	s.Require().Len(msgs, len(contents))
	for i, m := range msgs {
		assert.Equal(s.T(), contents[i], m.Get("content").String())
	}

	code, res = s.do("GET", path+"?limit=2", "apprentice", nil)
	s.Require().Equal(http.StatusOK, code, res)
	assert.Len(s.T(), gjson.Get(res, "data").Array(), 2)
	cursor := gjson.Get(res, "nextCursor").String()
	s.Require().NotEmpty(cursor)

	code, res = s.do("GET", path+"?cursor="+cursor, "apprentice", nil)
	s.Require().Equal(http.StatusOK, code, res)
	rest := gjson.Get(res, "data").Array()
	s.Require().Len(rest, 1)
	assert.Equal(s.T(), "third", rest[0].Get("content").String())

	code, _ = s.do("GET", path, "outsider", nil)
	assert.Equal(s.T(), http.StatusForbidden, code)

	code, res = s.do("POST", path, "owner", map[string]any{"content": "   "})
	assert.Equal(s.T(), http.StatusBadRequest, code, res)
}

func (s *TestSuite) TestJobShare() {
	crewID := s.newCrew(map[string]any{
		"jobTypes":      []string{"Journeyman Lineman"},
		"minHourlyRate": 45,
	})
	base := "/api/v1/crews/" + crewID + "/jobs"

	code, res := s.do("POST", base, "owner", map[string]any{
		"jobId":          "job-1",
		"title":          "Transmission rebuild",
		"company":        "Acme Power",
		"classification": "Journeyman Lineman",
		"hourlyRate":     50,
	})
	s.Require().Equal(http.StatusCreated, code, res)
	assert.GreaterOrEqual(s.T(), gjson.Get(res, "data.matchScore").Int(), int64(60))
	assert.False(s.T(), gjson.Get(res, "data.isPriority").Bool())
	id := gjson.Get(res, "data.id").String()
	s.Require().NotEmpty(id)

	s.Run("Should list the share for members", func() {
		code, res := s.do("GET", base, "apprentice", nil)
		s.Require().Equal(http.StatusOK, code, res)
		assert.Equal(s.T(), int64(1), gjson.Get(res, "count").Int())
	})

	s.Run("Should reject a changed response", func() {
		code, res := s.do("POST", base+"/"+id+"/response", "apprentice", map[string]any{"response": types.RESPONSE_ACCEPTED})
		s.Require().Equal(http.StatusOK, code, res)

		code, _ = s.do("POST", base+"/"+id+"/response", "apprentice", map[string]any{"response": types.RESPONSE_ACCEPTED})
		assert.Equal(s.T(), http.StatusOK, code)

		code, res = s.do("POST", base+"/"+id+"/response", "apprentice", map[string]any{"response": types.RESPONSE_DECLINED})
		assert.Equal(s.T(), http.StatusConflict, code)
		assert.Equal(s.T(), string(types.KIND_CONFLICT), gjson.Get(res, "kind").String())
	})

	s.Run("Should stamp views", func() {
		code, res := s.do("POST", base+"/"+id+"/viewed", "apprentice", nil)
		s.Require().Equal(http.StatusOK, code, res)
		assert.True(s.T(), gjson.Get(res, "data.viewedBy.apprentice").Exists())
	})

	s.Run("Should keep apprentices from sharing", func() {
		code, _ := s.do("POST", base, "apprentice", map[string]any{
			"jobId":          "job-2",
			"title":          "Storm restoration",
			"classification": "Journeyman Lineman",
		})
		assert.Equal(s.T(), http.StatusForbidden, code)
	})
}

func (s *TestSuite) TestPresence() {
	code, res := s.do("PUT", "/api/v1/presence/status", "owner", map[string]any{"status": types.PRESENCE_BUSY})
	s.Require().Equal(http.StatusNoContent, code, res)

	code, res = s.do("GET", "/api/v1/presence/owner", "apprentice", nil)
	s.Require().Equal(http.StatusOK, code, res)
	assert.Equal(s.T(), string(types.PRESENCE_BUSY), gjson.Get(res, "data.status").String())

	code, _ = s.do("PUT", "/api/v1/presence/status", "owner", map[string]any{"status": "sleeping"})
	assert.Equal(s.T(), http.StatusBadRequest, code)
}

func (s *TestSuite) TestTypingFollowsConversationAccess() {
	crewID := s.newCrew(nil)
	conv := "crew_" + crewID

	code, res := s.do("POST", "/api/v1/presence/typing", "apprentice", map[string]any{"conversationId": conv, "isTyping": true})
	s.Require().Equal(http.StatusNoContent, code, res)

	code, res = s.do("GET", "/api/v1/presence/apprentice", "owner", nil)
	s.Require().Equal(http.StatusOK, code, res)
	assert.True(s.T(), gjson.Get(res, "data.isTyping").Bool())

	code, _ = s.do("POST", "/api/v1/presence/typing", "outsider", map[string]any{"crewId": "", "conversationId": conv, "isTyping": true})
	assert.Equal(s.T(), http.StatusForbidden, code)

	code, _ = s.do("POST", "/api/v1/presence/typing", "apprentice", map[string]any{"crewId": "other", "conversationId": conv, "isTyping": true})
	assert.Equal(s.T(), http.StatusBadRequest, code)
}

func (s *TestSuite) TestAttachmentsUnavailable() {
	crewID := s.newCrew(nil)
	code, res := s.do("POST", "/api/v1/conversations/crew_"+crewID+"/attachments", "owner", nil)
	assert.Equal(s.T(), http.StatusServiceUnavailable, code)
	assert.True(s.T(), gjson.Get(res, "retryable").Bool())
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
