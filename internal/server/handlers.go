package server

import (
	"net/http"
	"strconv"

	"github.com/ButyrinIA/forum/internal/hub"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/view"
	"github.com/gin-gonic/gin"
)

type postInput struct {
	Title string `json:"title" binding:"required,min=1,max=50"`
	Body  string `json:"body" binding:"required,min=1,max=1000"`
}

type commentInput struct {
	Text string `json:"text" binding:"required,min=1,max=1000"`
}

// reactionMessage подбирает сообщение для вызывающего по итогу
// переключения.
func reactionMessage(kind models.ReactionKind, nowActive bool) string {
	switch {
	case kind == models.ReactionLike && nowActive:
		return "liked"
	case kind == models.ReactionLike:
		return "like removed"
	case nowActive:
		return "disliked"
	default:
		return "dislike removed"
	}
}

// reactionEvent собирает событие reaction-changed: факт переключения
// общий, вложенная проекция сущности считается для каждого получателя.
func reactionEvent(entityType, entityID, origin string, kind models.ReactionKind, nowActive bool, render func(viewerID *string) any) hub.Event {
	return hub.Event{
		Name:         "reaction-changed",
		OriginUserID: origin,
		Render: func(viewerID *string) any {
			return gin.H{
				"entityId":   entityID,
				"entityType": entityType,
				"kind":       kind,
				"nowActive":  nowActive,
				"entity":     render(viewerID),
			}
		},
	}
}

// Посты

func (s *Server) createPost(c *gin.Context) {
	var in postInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	post, err := s.posts.Create(c.Request.Context(), in.Title, in.Body, userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.hub.Broadcast(hub.Event{
		Name:         "new-post",
		OriginUserID: userID,
		Render:       func(viewerID *string) any { return view.ProjectPost(post, viewerID) },
	})
	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"post":    view.ProjectPost(post, viewerID(c)),
	})
}

func (s *Server) listPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	var cursor *string
	if v := c.Query("cursor"); v != "" {
		cursor = &v
	}

	feed, err := s.posts.Feed(c.Request.Context(), viewerID(c), cursor, limit,
		models.ParseSortKey(c.Query("sortBy")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (s *Server) getPost(c *gin.Context) {
	post, err := s.posts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view.ProjectPost(post, viewerID(c)))
}

func (s *Server) updatePost(c *gin.Context) {
	var in postInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	post, err := s.posts.Update(c.Request.Context(), c.Param("id"), in.Title, in.Body, userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.hub.Broadcast(hub.Event{
		Name:         "post-updated",
		OriginUserID: userID,
		Render:       func(viewerID *string) any { return view.ProjectPost(post, viewerID) },
	})
	c.JSON(http.StatusOK, gin.H{
		"message": "Post updated successfully",
		"post":    view.ProjectPost(post, viewerID(c)),
	})
}

func (s *Server) deletePost(c *gin.Context) {
	userID := callerID(c)
	postID := c.Param("id")

	removed, err := s.posts.Delete(c.Request.Context(), postID, userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.hub.Broadcast(hub.StaticEvent("post-deleted", userID, gin.H{"postId": postID}))
	c.JSON(http.StatusOK, gin.H{
		"message":         "Post deleted successfully",
		"postId":          postID,
		"removedComments": removed,
	})
}

func (s *Server) reactToPost(kind models.ReactionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := callerID(c)
		post, nowActive, err := s.posts.Toggle(c.Request.Context(), c.Param("id"), userID, kind)
		if err != nil {
			s.fail(c, err)
			return
		}

		s.hub.Broadcast(reactionEvent("post", post.ID, userID, kind, nowActive,
			func(viewerID *string) any { return view.ProjectPost(post, viewerID) }))
		c.JSON(http.StatusOK, gin.H{
			"message":   reactionMessage(kind, nowActive),
			"nowActive": nowActive,
			"post":      view.ProjectPost(post, viewerID(c)),
		})
	}
}

// Комментарии

func (s *Server) createRootComment(c *gin.Context) {
	var in commentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	comment, err := s.comments.CreateRoot(c.Request.Context(), in.Text, userID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	s.hub.Broadcast(hub.Event{
		Name:         "new-comment",
		OriginUserID: userID,
		Render:       func(viewerID *string) any { return view.ProjectComment(comment, viewerID) },
	})
	c.JSON(http.StatusCreated, gin.H{
		"message": "Comment created successfully",
		"comment": view.ProjectComment(comment, viewerID(c)),
	})
}

func (s *Server) listComments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	result, err := s.comments.List(c.Request.Context(), models.ParseSortKey(c.Query("sortBy")), page, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"comments":   view.ProjectComments(result.Comments, viewerID(c)),
		"pagination": result.Pagination,
	})
}

func (s *Server) getPostComments(c *gin.Context) {
	threads, err := s.comments.RootsWithReplies(c.Request.Context(), c.Param("id"),
		models.ParseSortKey(c.Query("sortBy")))
	if err != nil {
		s.fail(c, err)
		return
	}

	views := make([]view.CommentThread, len(threads))
	for i := range threads {
		views[i] = view.ProjectThread(&threads[i].Root, threads[i].Replies, viewerID(c))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) updateComment(c *gin.Context) {
	var in commentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	comment, err := s.comments.Update(c.Request.Context(), c.Param("id"), in.Text, userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	name := "comment-updated"
	if !comment.IsRoot() {
		name = "reply-updated"
	}
	s.hub.Broadcast(hub.Event{
		Name:         name,
		OriginUserID: userID,
		Render:       func(viewerID *string) any { return view.ProjectComment(comment, viewerID) },
	})
	c.JSON(http.StatusOK, gin.H{
		"message": "Comment updated successfully",
		"comment": view.ProjectComment(comment, viewerID(c)),
	})
}

func (s *Server) deleteComment(c *gin.Context) {
	userID := callerID(c)
	comment, cascaded, err := s.comments.Delete(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	if comment.IsRoot() {
		s.hub.Broadcast(hub.StaticEvent("comment-deleted", userID, gin.H{
			"commentId":          comment.ID,
			"cascadedReplyCount": cascaded,
		}))
	} else {
		s.hub.Broadcast(hub.StaticEvent("reply-deleted", userID, gin.H{
			"replyId":  comment.ID,
			"parentId": comment.ParentID,
		}))
	}
	c.JSON(http.StatusOK, gin.H{
		"message":            "Comment deleted successfully",
		"deletedId":          comment.ID,
		"cascadedReplyCount": cascaded,
	})
}

func (s *Server) reactToComment(kind models.ReactionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := callerID(c)
		comment, nowActive, err := s.comments.Toggle(c.Request.Context(), c.Param("id"), userID, kind)
		if err != nil {
			s.fail(c, err)
			return
		}

		s.hub.Broadcast(reactionEvent("comment", comment.ID, userID, kind, nowActive,
			func(viewerID *string) any { return view.ProjectComment(comment, viewerID) }))
		c.JSON(http.StatusOK, gin.H{
			"message":   reactionMessage(kind, nowActive),
			"nowActive": nowActive,
			"comment":   view.ProjectComment(comment, viewerID(c)),
		})
	}
}

// Ответы

func (s *Server) createReply(c *gin.Context) {
	var in commentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	reply, err := s.comments.CreateReply(c.Request.Context(), in.Text, userID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	s.hub.Broadcast(hub.Event{
		Name:         "new-reply",
		OriginUserID: userID,
		Render:       func(viewerID *string) any { return view.ProjectComment(reply, viewerID) },
	})
	c.JSON(http.StatusCreated, gin.H{
		"message": "Reply created successfully",
		"reply":   view.ProjectComment(reply, viewerID(c)),
	})
}

func (s *Server) updateReply(c *gin.Context) {
	var in commentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := callerID(c)
	reply, err := s.comments.UpdateReply(c.Request.Context(), c.Param("id"), in.Text, userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.hub.Broadcast(hub.Event{
		Name:         "reply-updated",
		OriginUserID: userID,
		Render:       func(viewerID *string) any { return view.ProjectComment(reply, viewerID) },
	})
	c.JSON(http.StatusOK, gin.H{
		"message": "Reply updated successfully",
		"reply":   view.ProjectComment(reply, viewerID(c)),
	})
}

func (s *Server) deleteReply(c *gin.Context) {
	userID := callerID(c)
	reply, err := s.comments.DeleteReply(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.hub.Broadcast(hub.StaticEvent("reply-deleted", userID, gin.H{
		"replyId":  reply.ID,
		"parentId": reply.ParentID,
	}))
	c.JSON(http.StatusOK, gin.H{
		"message":  "Reply deleted successfully",
		"replyId":  reply.ID,
		"parentId": reply.ParentID,
	})
}

func (s *Server) reactToReply(kind models.ReactionKind) gin.HandlerFunc {
	return s.reactToComment(kind)
}
